package narrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCompleter struct {
	text string
	err  error
	wait bool
	got  []Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (string, error) {
	f.got = append(f.got, req)
	if f.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func TestFallbacksWithoutModel(t *testing.T) {
	n := New(nil, time.Second, zap.NewNop())
	n.pick = func(int) int { return 1 }
	ctx := context.Background()

	assert.False(t, n.Enabled())
	assert.Equal(t,
		"Cold air rushes from the Crypt, carrying whispers of ages past. Your footsteps echo against ancient stone.",
		n.AreaDescription(ctx, "Crypt", AreaContext{}))
	assert.Equal(t, `Mira: "..."`, n.NPCDialogue(ctx, "Mira", "hello", NPCContext{}))
	assert.Equal(t, fallbackSummary, n.SessionSummary(ctx, []string{"a"}, nil))
	assert.Equal(t, fallbackQuestHook, n.QuestHook(ctx, QuestContext{}, ""))
}

func TestCombatFallbacks(t *testing.T) {
	cases := []struct {
		event CombatEvent
		want  string
	}{
		{CombatEvent{ActorName: "Aria", TargetName: "the ghoul", Result: "hit", IsCritical: true}, "Aria's strike finds its mark with devastating precision."},
		{CombatEvent{ActorName: "Aria", TargetName: "the ghoul", Result: "hit"}, "Aria's attack connects with the ghoul."},
		{CombatEvent{ActorName: "Aria", TargetName: "the ghoul", Result: "miss"}, "Aria's attack goes wide, missing the ghoul."},
		{CombatEvent{ActorName: "Aria", TargetName: "The ghoul", Result: "kill"}, "The ghoul falls, the light fading from their eyes."},
		{CombatEvent{ActorName: "Aria", Result: "parry"}, "The battle rages on."},
	}
	n := New(nil, 0, nil)
	for _, tc := range cases {
		assert.Equal(t, tc.want, n.CombatFlavor(context.Background(), tc.event))
	}
}

func TestModelTextIsTrimmedAndReturned(t *testing.T) {
	fc := &fakeCompleter{text: "  The torches gutter.\n"}
	n := New(fc, time.Second, zap.NewNop())

	got := n.AreaDescription(context.Background(), "Vault", AreaContext{Features: []string{"bones", "a well"}})
	assert.Equal(t, "The torches gutter.", got)

	require.Len(t, fc.got, 1)
	req := fc.got[0]
	assert.Equal(t, systemPrompt, req.System)
	assert.Equal(t, 200, req.MaxTokens)
	assert.Contains(t, req.Prompt, "Location: Vault")
	assert.Contains(t, req.Prompt, "Type: dungeon")
	assert.Contains(t, req.Prompt, "Notable Features: bones, a well")
}

func TestModelErrorFallsBack(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("rate limited")}
	n := New(fc, time.Second, zap.NewNop())

	assert.Equal(t, `Mira: "I have nothing more to say."`,
		n.NPCDialogue(context.Background(), "Mira", "Where is the key?", NPCContext{Mood: "wary"}))
	require.Len(t, fc.got, 1)
	assert.Equal(t, npcSystemPrompt, fc.got[0].System)
	assert.Contains(t, fc.got[0].Prompt, `The player says: "Where is the key?"`)
	assert.Contains(t, fc.got[0].Prompt, "Current Mood: wary")
}

func TestEmptyModelTextFallsBack(t *testing.T) {
	n := New(&fakeCompleter{text: "   "}, time.Second, zap.NewNop())
	assert.Equal(t, fallbackQuestHook, n.QuestHook(context.Background(), QuestContext{}, "rescue"))
}

func TestTimeoutFallsBack(t *testing.T) {
	fc := &fakeCompleter{wait: true}
	n := New(fc, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	got := n.SessionSummary(context.Background(), nil, nil)
	assert.Equal(t, fallbackSummary, got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSummaryPromptKeepsLastEvents(t *testing.T) {
	events := make([]string, 25)
	for i := range events {
		events[i] = "event " + string(rune('a'+i))
	}
	p := summaryPrompt(events, map[string]string{"Boros": "held the bridge", "Aria": "found the key"})

	assert.NotContains(t, p, "- event e\n")
	assert.Contains(t, p, "- event f\n")
	assert.Contains(t, p, "- event y")
	assert.Less(t, strings.Index(p, "- Aria: found the key"), strings.Index(p, "- Boros: held the bridge"))
}

func TestQuestHookDefaultsType(t *testing.T) {
	fc := &fakeCompleter{text: "A bell tolls."}
	n := New(fc, time.Second, zap.NewNop())
	n.QuestHook(context.Background(), QuestContext{Region: "the marsh"}, "")

	require.Len(t, fc.got, 1)
	assert.Contains(t, fc.got[0].Prompt, "Quest Type: mystery")
	assert.Contains(t, fc.got[0].Prompt, "Region: the marsh")
	assert.Contains(t, fc.got[0].Prompt, "Active Threats: unknown dangers")
}

func TestOpenAICompleter(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Water drips somewhere."}}]
		}`))
	}))
	defer srv.Close()

	c := NewOpenAI("sk-test", "gpt-4o-mini", srv.URL+"/v1/")
	got, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "describe", MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "Water drips somewhere.", got)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.EqualValues(t, 50, body["max_tokens"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAICompleterNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "created": 0, "model": "m", "choices": []}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("sk-test", "m", srv.URL+"/").Complete(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, errNoChoices)
}
