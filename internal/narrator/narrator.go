// Package narrator produces flavor text for the table: area descriptions,
// NPC lines, combat beats, session summaries and quest hooks.
//
// Narration is descriptive only and never touches room state. Every method
// returns usable text: when no model is configured, the model errors or the
// deadline passes, a canned fallback is returned instead.
package narrator

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Completer turns a system prompt and a user prompt into text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

type Narrator struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
	pick      func(n int) int
}

// New returns a Narrator. A nil completer means every call uses its
// fallback.
func New(completer Completer, timeout time.Duration, logger *zap.Logger) *Narrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Narrator{
		completer: completer,
		timeout:   timeout,
		logger:    logger,
		pick:      rand.IntN,
	}
}

// Enabled reports whether a model is configured.
func (n *Narrator) Enabled() bool { return n.completer != nil }

type AreaContext struct {
	RoomType    string   `json:"roomType"`
	Lighting    string   `json:"lighting"`
	Features    []string `json:"features"`
	ThreatLevel string   `json:"threatLevel"`
}

type NPCContext struct {
	Role          string `json:"role"`
	Personality   string `json:"personality"`
	SpeechPattern string `json:"speechPattern"`
	Mood          string `json:"mood"`
	Secret        string `json:"secret"`
}

type CombatEvent struct {
	Action     string `json:"action"`
	ActorName  string `json:"actorName"`
	ActorClass string `json:"actorClass"`
	TargetName string `json:"targetName"`
	Result     string `json:"result"` // hit, miss or kill
	IsCritical bool   `json:"isCritical"`
}

type QuestContext struct {
	Region      string `json:"region"`
	Threats     string `json:"threats"`
	PartyGoal   string `json:"partyGoal"`
	RecentEvent string `json:"recentEvent"`
}

func (n *Narrator) AreaDescription(ctx context.Context, areaName string, c AreaContext) string {
	return n.generate(ctx, "area-description",
		Request{System: systemPrompt, Prompt: areaPrompt(areaName, c), MaxTokens: 200},
		func() string { return fallbackArea(areaName, n.pick) })
}

func (n *Narrator) NPCDialogue(ctx context.Context, npcName, playerMessage string, c NPCContext) string {
	if n.completer == nil {
		return npcName + `: "..."`
	}
	return n.generate(ctx, "npc-dialogue",
		Request{System: npcSystemPrompt, Prompt: npcPrompt(npcName, playerMessage, c), MaxTokens: 150},
		func() string { return npcName + `: "I have nothing more to say."` })
}

func (n *Narrator) CombatFlavor(ctx context.Context, e CombatEvent) string {
	return n.generate(ctx, "combat-flavor",
		Request{System: systemPrompt, Prompt: combatPrompt(e), MaxTokens: 100},
		func() string { return fallbackCombat(e) })
}

func (n *Narrator) SessionSummary(ctx context.Context, events []string, highlights map[string]string) string {
	return n.generate(ctx, "session-summary",
		Request{System: systemPrompt, Prompt: summaryPrompt(events, highlights), MaxTokens: 300},
		func() string { return fallbackSummary })
}

func (n *Narrator) QuestHook(ctx context.Context, c QuestContext, questType string) string {
	if strings.TrimSpace(questType) == "" {
		questType = "mystery"
	}
	return n.generate(ctx, "quest-hook",
		Request{System: systemPrompt, Prompt: questPrompt(c, questType), MaxTokens: 200},
		func() string { return fallbackQuestHook })
}

func (n *Narrator) generate(ctx context.Context, kind string, req Request, fallback func() string) string {
	if n.completer == nil {
		return fallback()
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	text, err := n.completer.Complete(ctx, req)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		n.logger.Warn("narration fell back", zap.String("kind", kind), zap.Error(err))
		return fallback()
	}
	return text
}
