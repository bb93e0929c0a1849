package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGen answers every call through reply and remembers who was asked, in order.
type fakeGen struct {
	mu       sync.Mutex
	speakers []string
	reply    func(call int, speaker string) (string, error)
}

func (g *fakeGen) Generate(ctx context.Context, req Request) (Response, error) {
	speaker := speakerOf(req)
	g.mu.Lock()
	call := len(g.speakers)
	g.speakers = append(g.speakers, speaker)
	g.mu.Unlock()

	if g.reply == nil {
		return Response{Text: fmt.Sprintf("%s agrees.", speaker)}, nil
	}
	text, err := g.reply(call, speaker)
	return Response{Text: text}, err
}

func (g *fakeGen) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.speakers...)
}

// speakerOf reads the participant name from the rendered system prompt.
func speakerOf(req Request) string {
	line, _, _ := strings.Cut(req.System, "\n")
	name, _, _ := strings.Cut(strings.TrimPrefix(line, "You are "), ",")
	return name
}

// memRecorder keeps every record in memory.
type memRecorder struct {
	mu        sync.Mutex
	starts    []string
	rosters   int
	messages  []Message
	reactions []Reaction
	states    []State
	outcomes  []Outcome
	resets    int
}

func (r *memRecorder) RecordStart(_ context.Context, _ string, topic string, _ Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, topic)
	return nil
}

func (r *memRecorder) RecordParticipants(context.Context, string, []Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters++
	return nil
}

func (r *memRecorder) RecordMessage(_ context.Context, _ string, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return nil
}

func (r *memRecorder) RecordReaction(_ context.Context, _ string, _ string, rc Reaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, rc)
	return nil
}

func (r *memRecorder) RecordState(_ context.Context, _ string, st State, _ int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
	return nil
}

func (r *memRecorder) RecordOutcome(_ context.Context, _ string, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *memRecorder) RecordReset(context.Context, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	return nil
}

func roster(names ...string) []Participant {
	ps := make([]Participant, 0, len(names))
	for _, n := range names {
		ps = append(ps, Participant{ID: strings.ToLower(n), Name: n, Specialty: "Specialist"})
	}
	return ps
}

func newTestController(t *testing.T, gen Generator, rec Recorder, mutate func(*Config), names ...string) *Controller {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Pacing = 0
	if mutate != nil {
		mutate(&cfg)
	}
	c := NewController(cfg, gen, rec)
	if len(names) == 0 {
		names = []string{"Ada", "Lin", "Sam"}
	}
	require.NoError(t, c.SetParticipants(context.Background(), roster(names...)))
	return c
}

func participantMessages(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Kind == KindParticipant {
			out = append(out, m)
		}
	}
	return out
}

func TestRun_ThreeByThree(t *testing.T) {
	gen := &fakeGen{}
	rec := &memRecorder{}
	c := newTestController(t, gen, rec, nil)

	require.NoError(t, c.Run(context.Background(), "offline mode"))

	msgs := c.Messages()
	require.Len(t, msgs, 10)
	assert.Len(t, participantMessages(msgs), 9)

	// (round, participant-order) lexicographic order with the reality check
	// between round 1 and round 2.
	wantOrder := []string{"Ada", "Lin", "Sam", "", "Ada", "Lin", "Sam", "Ada", "Lin", "Sam"}
	wantRound := []int{1, 1, 1, 2, 2, 2, 2, 3, 3, 3}
	for i, m := range msgs {
		assert.Equal(t, wantOrder[i], m.Participant.Name, "message %d", i)
		assert.Equal(t, wantRound[i], m.Round, "message %d", i)
	}
	assert.Equal(t, KindSystem, msgs[3].Kind)

	state, round := c.State()
	assert.Equal(t, StateComplete, state)
	assert.Equal(t, 3, round)

	tally := c.Tally()
	assert.Equal(t, 9, tally.Total())
	assert.Equal(t, 9, tally[StanceAgree])

	assert.Equal(t, []string{"offline mode"}, rec.starts)
	assert.Len(t, rec.messages, 10, "placeholders are not recorded")
	assert.Equal(t, StateComplete, rec.states[len(rec.states)-1])
}

func TestRun_TurnOrderAcrossRounds(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		for _, rounds := range []int{1, 2, 4} {
			t.Run(fmt.Sprintf("%dx%d", n, rounds), func(t *testing.T) {
				names := make([]string, n)
				for i := range names {
					names[i] = fmt.Sprintf("P%d", i)
				}
				gen := &fakeGen{}
				c := newTestController(t, gen, nil, func(cfg *Config) { cfg.MaxRounds = rounds }, names...)
				require.NoError(t, c.Run(context.Background(), "topic"))

				turns := participantMessages(c.Messages())
				require.LessOrEqual(t, len(turns), n*rounds)
				require.Len(t, turns, n*rounds)
				for i, m := range turns {
					assert.Equal(t, i/n+1, m.Round)
					assert.Equal(t, names[i%n], m.Participant.Name)
				}
			})
		}
	}
}

func TestRun_RealityCheckExactlyOnceBeforeRoundTwo(t *testing.T) {
	gen := &fakeGen{}
	c := newTestController(t, gen, nil, nil)

	var mu sync.Mutex
	var added []Message
	c.Subscribe(func(ev Event) {
		if ev.Type == EventMessageAdded {
			mu.Lock()
			added = append(added, *ev.Message)
			mu.Unlock()
		}
	})

	require.NoError(t, c.Run(context.Background(), "topic"))

	systemCount := 0
	for i, m := range added {
		if m.Kind != KindSystem {
			continue
		}
		systemCount++
		require.Greater(t, i, 0)
		assert.Equal(t, 1, added[i-1].Round, "reality check follows round 1")
		require.Less(t, i+1, len(added))
		assert.Equal(t, 2, added[i+1].Round, "next emitted message is round 2's first turn")
		assert.Equal(t, "Ada", added[i+1].Participant.Name)
		assert.Contains(t, m.Content, "Reality check")
	}
	assert.Equal(t, 1, systemCount)
}

func TestRun_RealityCheckDisabled(t *testing.T) {
	c := newTestController(t, &fakeGen{}, nil, func(cfg *Config) { cfg.RealityCheckRound = 0 })
	require.NoError(t, c.Run(context.Background(), "topic"))
	for _, m := range c.Messages() {
		assert.NotEqual(t, KindSystem, m.Kind)
	}
}

func TestRun_StopBeforeParticipantK(t *testing.T) {
	names := []string{"P1", "P2", "P3", "P4"}
	for k := 2; k <= len(names); k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			var c *Controller
			gen := &fakeGen{}
			gen.reply = func(call int, speaker string) (string, error) {
				// The turn of participant k-1 is in flight when stop arrives; it finishes.
				if speaker == names[k-2] {
					c.Stop()
				}
				return speaker + " agrees.", nil
			}
			c = newTestController(t, gen, nil, nil, names...)

			require.NoError(t, c.Run(context.Background(), "topic"))

			turns := participantMessages(c.Messages())
			assert.Len(t, turns, k-1)
			assert.Len(t, gen.calls(), k-1)
			state, round := c.State()
			assert.Equal(t, StateComplete, state)
			assert.Equal(t, 1, round)
		})
	}
}

func TestRun_StopWithNoMessagesReturnsToIdle(t *testing.T) {
	var c *Controller
	gen := &fakeGen{reply: func(int, string) (string, error) {
		c.Stop()
		return "", errors.New("backend down")
	}}
	c = newTestController(t, gen, nil, nil)

	require.NoError(t, c.Run(context.Background(), "topic"))

	assert.Empty(t, c.Messages())
	state, _ := c.State()
	assert.Equal(t, StateIdle, state)
}

func TestRun_StopInLaterRound(t *testing.T) {
	var c *Controller
	gen := &fakeGen{}
	gen.reply = func(call int, speaker string) (string, error) {
		if call == 3 { // Ada, round 2
			c.Stop()
		}
		return "ok", nil
	}
	c = newTestController(t, gen, nil, nil)

	require.NoError(t, c.Run(context.Background(), "topic"))

	msgs := c.Messages()
	turns := participantMessages(msgs)
	require.Len(t, turns, 4)
	assert.Equal(t, 2, turns[3].Round)
	state, round := c.State()
	assert.Equal(t, StateComplete, state)
	assert.Equal(t, 2, round)
}

func TestRun_FailedTurnIsDropped(t *testing.T) {
	gen := &fakeGen{reply: func(call int, speaker string) (string, error) {
		if call == 1 {
			return "", errors.New("rate limited")
		}
		return speaker + " agrees.", nil
	}}
	c := newTestController(t, gen, nil, nil)

	var removed atomic.Int32
	c.Subscribe(func(ev Event) {
		if ev.Type == EventMessageRemoved {
			removed.Add(1)
		}
	})

	require.NoError(t, c.Run(context.Background(), "topic"))

	msgs := c.Messages()
	turns := participantMessages(msgs)
	assert.Len(t, turns, 8)
	assert.Len(t, gen.calls(), 9, "failed turns are not retried")
	assert.Equal(t, int32(1), removed.Load())
	for _, m := range msgs {
		assert.NotEqual(t, KindPlaceholder, m.Kind)
	}
	assert.Equal(t, "Ada", turns[0].Participant.Name)
	assert.Equal(t, "Sam", turns[1].Participant.Name)
}

func TestRun_EmptyAndPanickingTurnsAreDropped(t *testing.T) {
	gen := &fakeGen{reply: func(call int, speaker string) (string, error) {
		switch speaker {
		case "Lin":
			return "   ", nil
		case "Sam":
			panic("backend exploded")
		}
		return "fine", nil
	}}
	c := newTestController(t, gen, nil, func(cfg *Config) { cfg.MaxRounds = 1 })

	require.NoError(t, c.Run(context.Background(), "topic"))

	turns := participantMessages(c.Messages())
	require.Len(t, turns, 1)
	assert.Equal(t, "Ada", turns[0].Participant.Name)
}

func TestRun_Guards(t *testing.T) {
	t.Run("no participants", func(t *testing.T) {
		c := NewController(DefaultConfig(), &fakeGen{}, nil)
		assert.ErrorIs(t, c.Run(context.Background(), "topic"), ErrNoParticipants)
	})

	t.Run("already running", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{}, 1)
		gen := &fakeGen{reply: func(call int, _ string) (string, error) {
			if call == 0 {
				started <- struct{}{}
				<-release
			}
			return "ok", nil
		}}
		c := newTestController(t, gen, nil, func(cfg *Config) { cfg.MaxRounds = 1 })

		done := make(chan error, 1)
		go func() { done <- c.Run(context.Background(), "topic") }()
		<-started

		assert.ErrorIs(t, c.Run(context.Background(), "again"), ErrAlreadyRunning)
		assert.ErrorIs(t, c.Reset(context.Background()), ErrAlreadyRunning)
		assert.True(t, c.Busy())
		close(release)
		require.NoError(t, <-done)
	})

	t.Run("complete session needs reset", func(t *testing.T) {
		rec := &memRecorder{}
		c := newTestController(t, &fakeGen{}, rec, func(cfg *Config) { cfg.MaxRounds = 1 })
		require.NoError(t, c.Run(context.Background(), "topic"))
		assert.ErrorIs(t, c.Run(context.Background(), "topic"), ErrSessionComplete)

		require.NoError(t, c.Reset(context.Background()))
		assert.Empty(t, c.Messages())
		state, round := c.State()
		assert.Equal(t, StateIdle, state)
		assert.Zero(t, round)
		assert.Equal(t, 1, rec.resets)

		require.NoError(t, c.Run(context.Background(), "second topic"))
		assert.Len(t, participantMessages(c.Messages()), 3)
	})
}

func TestRun_PauseResume(t *testing.T) {
	var c *Controller
	gen := &fakeGen{reply: func(call int, speaker string) (string, error) {
		if call == 0 {
			assert.NoError(t, c.Pause())
		}
		return "ok", nil
	}}
	c = newTestController(t, gen, nil, func(cfg *Config) { cfg.MaxRounds = 2 })

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), "topic") }()

	require.Eventually(t, func() bool {
		state, _ := c.State()
		return state == StatePaused
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, c.IsPaused())
	assert.Len(t, participantMessages(c.Messages()), 1, "paused at the next turn boundary")
	_, round := c.State()
	assert.Equal(t, 1, round)

	require.NoError(t, c.Resume())
	require.NoError(t, <-done)

	assert.Len(t, participantMessages(c.Messages()), 6)
	assert.ErrorIs(t, c.Resume(), ErrNotPaused)
	assert.ErrorIs(t, c.Pause(), ErrNotRunning)
}

func TestRun_StopWhilePaused(t *testing.T) {
	var c *Controller
	gen := &fakeGen{reply: func(call int, speaker string) (string, error) {
		if call == 0 {
			assert.NoError(t, c.Pause())
		}
		return "ok", nil
	}}
	c = newTestController(t, gen, nil, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), "topic") }()

	require.Eventually(t, func() bool {
		state, _ := c.State()
		return state == StatePaused
	}, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	require.NoError(t, <-done)

	assert.Len(t, participantMessages(c.Messages()), 1)
	state, _ := c.State()
	assert.Equal(t, StateComplete, state)
	assert.False(t, c.IsPaused())
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		if speakerOf(req) == "Lin" {
			cancel()
			<-ctx.Done()
			return Response{}, ctx.Err()
		}
		return Response{Text: "ok"}, nil
	})
	c := newTestController(t, gen, nil, nil)

	err := c.Run(ctx, "topic")
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, c.Messages(), 1)
	state, _ := c.State()
	assert.Equal(t, StateComplete, state)
}

func TestRun_TurnTimeout(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		if speakerOf(req) == "Ada" {
			<-ctx.Done()
			return Response{}, ctx.Err()
		}
		return Response{Text: "ok"}, nil
	})
	c := newTestController(t, gen, nil, func(cfg *Config) {
		cfg.MaxRounds = 1
		cfg.TurnTimeout = 20 * time.Millisecond
	})

	require.NoError(t, c.Run(context.Background(), "topic"))

	turns := participantMessages(c.Messages())
	require.Len(t, turns, 2)
	assert.Equal(t, "Lin", turns[0].Participant.Name)
}

func TestRun_Pacing(t *testing.T) {
	c := newTestController(t, &fakeGen{}, nil, func(cfg *Config) {
		cfg.MaxRounds = 1
		cfg.Pacing = 30 * time.Millisecond
	})

	start := time.Now()
	require.NoError(t, c.Run(context.Background(), "topic"))
	// Two gaps between three turns, none before the first.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRun_Sequential(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return Response{Text: "ok"}, nil
	})
	c := newTestController(t, gen, nil, nil)
	require.NoError(t, c.Run(context.Background(), "topic"))
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestRun_BoundedConcurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	delays := map[string]time.Duration{"P1": 40 * time.Millisecond, "P2": 5 * time.Millisecond, "P3": 20 * time.Millisecond, "P4": 0}
	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		speaker := speakerOf(req)
		time.Sleep(delays[speaker])
		return Response{Text: speaker + " agrees."}, nil
	})
	names := []string{"P1", "P2", "P3", "P4"}
	c := newTestController(t, gen, nil, func(cfg *Config) {
		cfg.Concurrency = 2
		cfg.MaxRounds = 2
	}, names...)

	require.NoError(t, c.Run(context.Background(), "topic"))

	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
	turns := participantMessages(c.Messages())
	require.Len(t, turns, 8)
	for i, m := range turns {
		assert.Equal(t, names[i%4], m.Participant.Name, "turn %d committed in roster order", i)
		assert.Equal(t, i/4+1, m.Round)
	}
}

func TestRun_HybridMode(t *testing.T) {
	gen := &fakeGen{reply: func(call int, speaker string) (string, error) {
		switch speaker {
		case "Ada":
			return `{"stance":"risk","message":"Scaling worries me."}`, nil
		case "Lin":
			return "no json at all", nil
		}
		return `{"stance":"idea","message":"Let us prototype."}`, nil
	}}
	c := newTestController(t, gen, nil, func(cfg *Config) {
		cfg.Mode = ModeHybrid
		cfg.MaxRounds = 1
	})

	require.NoError(t, c.Run(context.Background(), "topic"))

	turns := participantMessages(c.Messages())
	require.Len(t, turns, 3)
	assert.Equal(t, StanceRisk, turns[0].Stance)
	assert.Equal(t, "Scaling worries me.", turns[0].Content)
	assert.Equal(t, StanceNeutral, turns[1].Stance)
	assert.Equal(t, "no json at all", turns[1].Content)
	assert.Equal(t, StanceIdea, turns[2].Stance)

	tally := c.Tally()
	assert.Equal(t, 1, tally[StanceNeutral])
	assert.Equal(t, 3, tally.Total())
}

func TestRun_AutoReact(t *testing.T) {
	gen := &fakeGen{reply: func(call int, speaker string) (string, error) {
		switch speaker {
		case "Lin":
			return "I disagree.", nil
		case "Sam":
			return "There is a risk here.", nil
		}
		return "Sounds good.", nil
	}}
	rec := &memRecorder{}
	c := newTestController(t, gen, rec, func(cfg *Config) {
		cfg.AutoReact = true
		cfg.MaxRounds = 1
	})

	require.NoError(t, c.Run(context.Background(), "topic"))

	turns := participantMessages(c.Messages())
	require.Len(t, turns, 3)
	assert.Equal(t, []Reaction{{ParticipantID: "lin", Tag: TagDisagree}}, turns[0].Reactions)
	assert.Equal(t, []Reaction{{ParticipantID: "sam", Tag: TagRisk}}, turns[1].Reactions)
	assert.Empty(t, turns[2].Reactions, "the last speaker gets no reaction within the round")
	assert.Len(t, rec.reactions, 2)
}

func TestReact(t *testing.T) {
	c := newTestController(t, &fakeGen{}, nil, func(cfg *Config) { cfg.MaxRounds = 2 })
	require.NoError(t, c.Run(context.Background(), "topic"))

	msgs := c.Messages()
	ada := msgs[0]
	require.Equal(t, "ada", ada.Participant.ID)
	ctx := context.Background()

	require.NoError(t, c.React(ctx, ada.ID, "lin", TagAgree))
	require.NoError(t, c.React(ctx, ada.ID, "sam", TagRisk))
	require.NoError(t, c.React(ctx, ada.ID, "lin", TagDisagree))

	got := c.Messages()[0].Reactions
	assert.Equal(t, []Reaction{
		{ParticipantID: "lin", Tag: TagDisagree},
		{ParticipantID: "sam", Tag: TagRisk},
	}, got, "second reaction from the same participant replaces the first")

	assert.ErrorIs(t, c.React(ctx, "missing", "lin", TagAgree), ErrMessageNotFound)
	assert.ErrorIs(t, c.React(ctx, msgs[3].ID, "lin", TagAgree), ErrNotReactable)
	assert.ErrorIs(t, c.React(ctx, ada.ID, "ghost", TagAgree), ErrUnknownParticipant)
	assert.ErrorIs(t, c.React(ctx, ada.ID, "ada", TagAgree), ErrSelfReaction)
	assert.ErrorIs(t, c.React(ctx, ada.ID, "lin", ReactionTag("idea")), ErrInvalidTag)
}

func TestSetParticipants(t *testing.T) {
	ctx := context.Background()
	c := NewController(DefaultConfig(), &fakeGen{}, nil)

	assert.ErrorIs(t, c.SetParticipants(ctx, nil), ErrNoParticipants)
	assert.ErrorIs(t, c.SetParticipants(ctx, []Participant{{ID: "a"}}), ErrInvalidParticipant)
	assert.ErrorIs(t, c.SetParticipants(ctx, []Participant{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}), ErrInvalidParticipant)

	t.Run("rejected during a turn", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{}, 1)
		gen := &fakeGen{reply: func(call int, _ string) (string, error) {
			if call == 0 {
				started <- struct{}{}
				<-release
			}
			return "ok", nil
		}}
		c := newTestController(t, gen, nil, func(cfg *Config) { cfg.MaxRounds = 1 })

		done := make(chan error, 1)
		go func() { done <- c.Run(ctx, "topic") }()
		<-started
		assert.ErrorIs(t, c.SetParticipants(ctx, roster("Zoe")), ErrTurnInFlight)
		close(release)
		require.NoError(t, <-done)
	})

	t.Run("applies from the next round", func(t *testing.T) {
		var c *Controller
		gen := &fakeGen{}
		c = newTestController(t, gen, nil, func(cfg *Config) {
			cfg.MaxRounds = 2
			cfg.RoundStart = func(ctx context.Context, round int) string {
				if round == 2 {
					require.NoError(t, c.SetParticipants(ctx, roster("Zoe", "Ada")))
				}
				return ""
			}
		})
		require.NoError(t, c.Run(ctx, "topic"))
		assert.Equal(t, []string{"Ada", "Lin", "Sam", "Zoe", "Ada"}, gen.calls())
	})
}

func TestRun_RoundStartHookOutputReachesPrompt(t *testing.T) {
	var prompts []string
	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		prompts = append(prompts, req.Prompt)
		return Response{Text: "ok"}, nil
	})
	c := newTestController(t, gen, nil, func(cfg *Config) {
		cfg.MaxRounds = 1
		cfg.RoundStart = func(context.Context, int) string { return "CI is red on main" }
	}, "Ada")

	require.NoError(t, c.Run(context.Background(), "release plan"))
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "## Context\nCI is red on main")
	assert.Contains(t, prompts[0], "# Roundtable: release plan")
}

func TestSnapshotAndRestore(t *testing.T) {
	c := newTestController(t, &fakeGen{}, nil, func(cfg *Config) { cfg.Session = "s1" })
	require.NoError(t, c.Run(context.Background(), "topic"))

	snap := c.Snapshot()
	assert.Equal(t, "s1", snap.Session)
	assert.Equal(t, "topic", snap.Topic)
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, 3, snap.MaxRounds)
	assert.Len(t, snap.Messages, 10)
	assert.Equal(t, 9, snap.Tally.Total())

	interrupted := snap
	interrupted.State = StateRunning
	restored := NewController(DefaultConfig(), &fakeGen{}, nil)
	require.NoError(t, restored.Restore(interrupted))
	state, _ := restored.State()
	assert.Equal(t, StateComplete, state)
	assert.Len(t, restored.Messages(), 10)
	assert.Len(t, restored.Participants(), 3)

	empty := NewController(DefaultConfig(), &fakeGen{}, nil)
	require.NoError(t, empty.Restore(Snapshot{State: StatePaused}))
	state, _ = empty.State()
	assert.Equal(t, StateIdle, state)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c := NewController(DefaultConfig(), &fakeGen{}, nil)
	var n atomic.Int32
	unsubscribe := c.Subscribe(func(Event) { n.Add(1) })

	require.NoError(t, c.SetParticipants(context.Background(), roster("Ada")))
	assert.Equal(t, int32(1), n.Load())

	unsubscribe()
	require.NoError(t, c.SetParticipants(context.Background(), roster("Lin")))
	assert.Equal(t, int32(1), n.Load())
}

func TestRun_PauseDuringFinalTurn(t *testing.T) {
	var (
		c     *Controller
		calls atomic.Int32
	)
	gen := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		if calls.Add(1) == 2 {
			require.NoError(t, c.Pause())
		}
		return Response{Text: speakerOf(req) + " agrees"}, nil
	})
	c = newTestController(t, gen, nil, func(cfg *Config) {
		cfg.MaxRounds = 1
		cfg.RealityCheckRound = 0
	}, "Ada", "Lin")

	require.NoError(t, c.Run(context.Background(), "topic"))
	state, _ := c.State()
	assert.Equal(t, StateComplete, state)
	assert.False(t, c.IsPaused(), "a finished session is not paused")

	require.NoError(t, c.Reset(context.Background()))
	assert.False(t, c.IsPaused())

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), "next topic") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		c.Stop()
		t.Fatal("second run parked before its first turn")
	}

	state, _ = c.State()
	assert.Equal(t, StateComplete, state)
	assert.Len(t, participantMessages(c.Messages()), 2)
}
