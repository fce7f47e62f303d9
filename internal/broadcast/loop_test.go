package broadcast_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/lingualink/internal/broadcast"
	"github.com/MrWong99/lingualink/internal/diarize"
	"github.com/MrWong99/lingualink/internal/inference"
	"github.com/MrWong99/lingualink/internal/language"
	"github.com/MrWong99/lingualink/internal/transcript"
	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingualink/pkg/provider/stt/mock"
	translatemock "github.com/MrWong99/lingualink/pkg/provider/translate/mock"
)

type loopFixture struct {
	ring     *audio.Ring
	registry *broadcast.Registry
	stt      *sttmock.Transcriber
	tl       *translatemock.Translator
	store    *transcript.MemStore
	loop     *broadcast.Loop
}

func newLoopFixture(t *testing.T, tr *sttmock.Transcriber, opts ...broadcast.LoopOption) *loopFixture {
	t.Helper()
	tl := &translatemock.Translator{}
	svc := language.NewSharedService(tl, []language.Pair{
		{Source: "en", Target: "ar"},
		{Source: "en", Target: "es"},
		{Source: "en", Target: "fr"},
		{Source: "en", Target: "de"},
		{Source: "ar", Target: "en"},
	})
	gw := inference.New(tr, svc, inference.WithWorkers(2))
	t.Cleanup(gw.Close)

	f := &loopFixture{
		ring:     audio.NewRing(64000),
		registry: broadcast.NewRegistry(nil),
		stt:      tr,
		tl:       tl,
		store:    transcript.NewMemStore(0),
	}
	opts = append([]broadcast.LoopOption{broadcast.WithStore(f.store)}, opts...)
	f.loop = broadcast.NewLoop(broadcast.LoopConfig{}, f.ring, f.registry, gw, opts...)
	return f
}

func speech(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(0.3 * math.Sin(2*math.Pi*300*float64(i)/16000))
	}
	return s
}

func TestLoop_FanOutWithPerUserTranslations(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, &sttmock.Transcriber{Result: stt.Result{Text: "good morning", Language: "en"}})
	alice, bob, carol := &fakeConn{}, &fakeConn{}, &fakeConn{}
	_, _ = f.registry.Register("alice", "ar", alice)
	_, _ = f.registry.Register("bob", "es", bob)
	_, _ = f.registry.Register("carol", "en", carol)

	f.ring.Write(speech(32000))
	if sent := f.loop.Tick(context.Background()); sent != 1 {
		t.Fatalf("Tick sent %d results, want 1", sent)
	}

	want := map[string]string{"alice": "[ar] good morning", "bob": "[es] good morning"}
	for name, c := range map[string]*fakeConn{"alice": alice, "bob": bob, "carol": carol} {
		res := c.results()
		if len(res) != 1 {
			t.Fatalf("%s got %d results", name, len(res))
		}
		r := res[0]
		if r.Type != "transcription_result" || r.SpeakerID != diarize.FallbackSpeaker ||
			r.OriginalText != "good morning" || r.DetectedLanguage != "en" {
			t.Errorf("%s result = %+v", name, r)
		}
		if len(r.Translations) != len(want) {
			t.Errorf("%s translations = %v, want %v", name, r.Translations, want)
		}
		for u, txt := range want {
			if r.Translations[u] != txt {
				t.Errorf("%s translations[%s] = %q, want %q", name, u, r.Translations[u], txt)
			}
		}
	}

	if f.stt.CallCount() != 1 {
		t.Errorf("transcriber called %d times, want 1", f.stt.CallCount())
	}
	if calls := f.stt.Calls(); calls[0].Samples != 32000 {
		t.Errorf("transcribed %d samples, want the 2s window", calls[0].Samples)
	}
	if f.store.Len() != 1 {
		t.Errorf("store has %d entries, want 1", f.store.Len())
	}
}

func TestLoop_TranslatesEachDistinctLanguageOnce(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, &sttmock.Transcriber{Result: stt.Result{Text: "see you", Language: "en"}})
	listeners := map[string]string{
		"alice": "ar", "amir": "ar",
		"bob": "es", "berta": "es",
		"chloe": "fr",
		"dirk":  "de",
		"eve":   "en",
	}
	conns := make(map[string]*fakeConn, len(listeners))
	for id, lang := range listeners {
		conns[id] = &fakeConn{}
		_, _ = f.registry.Register(id, lang, conns[id])
	}

	for range 3 {
		f.ring.Write(speech(32000))
		if sent := f.loop.Tick(context.Background()); sent != 1 {
			t.Fatalf("Tick sent %d results, want 1", sent)
		}
	}

	// Four distinct non-source languages per tick.
	if n := f.tl.CallCount(); n != 3*4 {
		t.Errorf("translator called %d times, want %d", n, 3*4)
	}
	for id, c := range conns {
		res := c.results()
		if len(res) != 3 {
			t.Fatalf("%s got %d results, want 3", id, len(res))
		}
		tr := res[2].Translations
		if len(tr) != 6 {
			t.Errorf("%s translations = %v, want one per non-English listener", id, tr)
		}
		for u, lang := range listeners {
			want := "[" + lang + "] see you"
			if lang == "en" {
				if _, ok := tr[u]; ok {
					t.Errorf("%s: same-language listener %s got a translation", id, u)
				}
				continue
			}
			if tr[u] != want {
				t.Errorf("%s: translations[%s] = %q, want %q", id, u, tr[u], want)
			}
		}
	}
}

func TestLoop_SendFailureEvictsOnlyThatUser(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, &sttmock.Transcriber{Result: stt.Result{Text: "hi", Language: "en"}})
	good := &fakeConn{}
	bad := &fakeConn{err: errors.New("connection closed")}
	_, _ = f.registry.Register("good", "ar", good)
	_, _ = f.registry.Register("bad", "es", bad)

	f.ring.Write(speech(32000))
	f.loop.Tick(context.Background())

	if _, ok := f.registry.Preference("bad"); ok {
		t.Error("failing listener not evicted")
	}
	if f.registry.Len() != 1 {
		t.Errorf("registry len = %d, want 1", f.registry.Len())
	}

	f.ring.Write(speech(32000))
	f.loop.Tick(context.Background())

	res := good.results()
	if len(res) != 2 {
		t.Fatalf("good listener got %d results, want 2", len(res))
	}
	if _, ok := res[1].Translations["bad"]; ok {
		t.Error("evicted user still translated for")
	}
}

func TestLoop_SkipConditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		samples  int
		register bool
		text     string
	}{
		{name: "window at floor", samples: 8000, register: true, text: "x"},
		{name: "no listeners", samples: 32000, register: false, text: "x"},
		{name: "empty transcription", samples: 32000, register: true, text: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newLoopFixture(t, &sttmock.Transcriber{Result: stt.Result{Text: tt.text, Language: "en"}})
			c := &fakeConn{}
			if tt.register {
				_, _ = f.registry.Register("u", "ar", c)
			}
			f.ring.Write(speech(tt.samples))

			if sent := f.loop.Tick(context.Background()); sent != 0 {
				t.Errorf("Tick sent %d, want 0", sent)
			}
			if len(c.results()) != 0 {
				t.Error("listener received a result")
			}
			if f.ring.Len() != 0 {
				t.Error("window not consumed")
			}
		})
	}
}

func TestLoop_TranscriptionErrorSendsNothing(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, &sttmock.Transcriber{Err: errors.New("gpu on fire")})
	c := &fakeConn{}
	_, _ = f.registry.Register("u", "ar", c)
	f.ring.Write(speech(32000))

	if sent := f.loop.Tick(context.Background()); sent != 0 {
		t.Errorf("sent %d", sent)
	}
	if f.registry.Len() != 1 {
		t.Error("transcription failure evicted a listener")
	}
}

func TestLoop_MultipleSpeakers(t *testing.T) {
	t.Parallel()

	two := diarize.NewLazy(func() (diarize.Provider, error) {
		return diarize.Func(func(_ context.Context, s audio.Segment) ([]diarize.Turn, error) {
			half := len(s.Samples) / 2
			return []diarize.Turn{
				{SpeakerID: "SPEAKER_00", Segment: audio.Segment{SampleRate: s.SampleRate, Samples: s.Samples[:half]}},
				{SpeakerID: "SPEAKER_01", Segment: audio.Segment{SampleRate: s.SampleRate, Samples: s.Samples[half:]}},
			}, nil
		}), nil
	})
	f := newLoopFixture(t, &sttmock.Transcriber{Result: stt.Result{Text: "hello", Language: "en"}},
		broadcast.WithDiarizer(two))
	c := &fakeConn{}
	_, _ = f.registry.Register("u", "en", c)

	f.ring.Write(speech(32000))
	if sent := f.loop.Tick(context.Background()); sent != 2 {
		t.Fatalf("sent %d, want one per speaker", sent)
	}
	res := c.results()
	if res[0].SpeakerID != "SPEAKER_00" || res[1].SpeakerID != "SPEAKER_01" {
		t.Errorf("speakers = %s, %s", res[0].SpeakerID, res[1].SpeakerID)
	}
	if len(res[0].Translations) != 0 {
		t.Errorf("same-language listener got translations %v", res[0].Translations)
	}
	if f.tl.CallCount() != 0 {
		t.Error("translator called for a same-language listener")
	}
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, &sttmock.Transcriber{Result: stt.Result{Text: "tick", Language: "en"}})
	gw := inference.New(f.stt, nil, inference.WithWorkers(1))
	t.Cleanup(gw.Close)
	loop := broadcast.NewLoop(broadcast.LoopConfig{Interval: 10 * time.Millisecond}, f.ring, f.registry, gw)
	c := &fakeConn{}
	_, _ = f.registry.Register("u", "en", c)
	f.ring.Write(speech(32000))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for len(c.results()) == 0 {
		select {
		case <-deadline:
			t.Fatal("loop never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
