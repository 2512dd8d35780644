package narrator

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

const systemPrompt = `You are the Dungeon Master narrator for a dark fantasy tabletop RPG.

ABSOLUTE RULES:
- You DESCRIBE events, you never DECIDE them
- You never mention dice, numbers, stats, or game mechanics
- You never say what players do, only what they observe
- You maintain a tone of: dark, atmospheric, wondrous, slightly ominous
- You keep responses concise: 2-4 sentences unless summarizing

You are a calm, immersive narrator, never a chatbot.`

const npcSystemPrompt = systemPrompt + `

You are voicing an NPC in conversation. Stay in character completely. Keep responses to 1-3 sentences. Never break character.`

const (
	fallbackSummary   = "The adventurers faced many challenges and emerged changed."
	fallbackQuestHook = "A plea for help reaches your ears. Someone needs heroes."
	maxSummaryEvents  = 20
)

func or(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func areaPrompt(areaName string, c AreaContext) string {
	features := "ancient stone walls"
	if len(c.Features) > 0 {
		features = strings.Join(c.Features, ", ")
	}
	return fmt.Sprintf(`Describe this location the party has just entered:

Location: %s
Type: %s
Lighting: %s
Notable Features: %s
Threat Level: %s

Guidelines:
- Use 2-3 vivid sentences
- Include at least 2 senses (sight, sound, smell, touch)
- Hint at one potential danger or mystery
- Never describe player actions or reactions`,
		areaName, or(c.RoomType, "dungeon"), or(c.Lighting, "dim torchlight"), features, or(c.ThreatLevel, "unknown"))
}

func npcPrompt(npcName, playerMessage string, c NPCContext) string {
	return fmt.Sprintf(`NPC Profile:
Name: %s
Role: %s
Personality: %s
Speech Pattern: %s
Current Mood: %s
Secret/Goal: %s

The player says: %q

Respond as %s in 1-3 sentences. Stay in character.`,
		npcName, or(c.Role, "townsperson"), or(c.Personality, "cautious, weary"), or(c.SpeechPattern, "common"),
		or(c.Mood, "neutral"), or(c.Secret, "none known"), playerMessage, npcName)
}

func combatPrompt(e CombatEvent) string {
	critical := ""
	if e.IsCritical {
		critical = "THIS IS A CRITICAL HIT - make it dramatic!"
	}
	return fmt.Sprintf(`Narrate this combat moment (1-2 sentences only):

Action: %s
Actor: %s (%s)
Target: %s
Result: %s
%s

Never mention numbers or dice. Make it visceral and dramatic.`,
		e.Action, e.ActorName, e.ActorClass, e.TargetName, e.Result, critical)
}

func summaryPrompt(events []string, highlights map[string]string) string {
	if len(events) > maxSummaryEvents {
		events = events[len(events)-maxSummaryEvents:]
	}
	var ev strings.Builder
	for i, e := range events {
		if i > 0 {
			ev.WriteByte('\n')
		}
		ev.WriteString("- " + e)
	}

	hl := "- Various heroic deeds"
	if len(highlights) > 0 {
		lines := make([]string, 0, len(highlights))
		for _, player := range slices.Sorted(maps.Keys(highlights)) {
			lines = append(lines, "- "+player+": "+highlights[player])
		}
		hl = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`Summarize this session as an epic chronicle (100-150 words):

SESSION EVENTS:
%s

PLAYER HIGHLIGHTS:
%s

Requirements:
- Write in past tense, narrative style
- Include 2-3 major events
- Highlight one memorable player moment
- Note one unresolved thread for next session
- Maintain dark fantasy tone
- Do NOT mention dice, HP, or mechanics`, ev.String(), hl)
}

func questPrompt(c QuestContext, questType string) string {
	return fmt.Sprintf(`Generate a quest hook for the party (3-4 sentences):

Region: %s
Active Threats: %s
Party Goal: %s
Recent Event: %s
Quest Type: %s

Requirements:
- Must have clear objectives but room for player choice
- Must have moral complexity or personal stakes
- Must NOT promise specific rewards
- Create urgency without railroading`,
		or(c.Region, "dark forest"), or(c.Threats, "unknown dangers"), or(c.PartyGoal, "seeking adventure"),
		or(c.RecentEvent, "arrived in town"), questType)
}

func fallbackArea(areaName string, pick func(int) int) string {
	options := []string{
		fmt.Sprintf("The %s stretches before you, shadows dancing at the edges of your torchlight. Something stirs in the darkness beyond.", areaName),
		fmt.Sprintf("Cold air rushes from the %s, carrying whispers of ages past. Your footsteps echo against ancient stone.", areaName),
		fmt.Sprintf("The %s awaits, silent and watchful. Dust motes hang suspended in the dim light.", areaName),
	}
	return options[pick(len(options))]
}

func fallbackCombat(e CombatEvent) string {
	switch e.Result {
	case "hit":
		if e.IsCritical {
			return e.ActorName + "'s strike finds its mark with devastating precision."
		}
		return e.ActorName + "'s attack connects with " + e.TargetName + "."
	case "miss":
		return e.ActorName + "'s attack goes wide, missing " + e.TargetName + "."
	case "kill":
		return e.TargetName + " falls, the light fading from their eyes."
	default:
		return "The battle rages on."
	}
}
