package session

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/satindergrewal/sruthi/internal/audio"
	"github.com/satindergrewal/sruthi/internal/engine"
	"github.com/satindergrewal/sruthi/internal/theory"
	"github.com/satindergrewal/sruthi/internal/timer"
)

type call struct {
	op        string
	freq, arg float64
}

// fakeTone records every engine call.
type fakeTone struct {
	calls []call
	err   error
}

func (f *fakeTone) SetVolume(level float64) error {
	f.calls = append(f.calls, call{op: "volume", arg: level})
	return f.err
}

func (f *fakeTone) PlayTone(freq, pulse float64) error {
	f.calls = append(f.calls, call{op: "tone", freq: freq, arg: pulse})
	return f.err
}

func (f *fakeTone) PlayOneShot(freq, d float64) error {
	f.calls = append(f.calls, call{op: "oneshot", freq: freq, arg: d})
	return f.err
}

func (f *fakeTone) StopTone(immediate bool) {
	a := 0.0
	if immediate {
		a = 1
	}
	f.calls = append(f.calls, call{op: "stop", arg: a})
}

func (f *fakeTone) last() call { return f.calls[len(f.calls)-1] }

func (f *fakeTone) ops(op string) []call {
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func newTest(t *testing.T) (*Controller, *fakeTone, *timer.Manual) {
	t.Helper()
	tone := &fakeTone{}
	clock := timer.NewManual()
	return New(tone, clock), tone, clock
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func freq(tonic string, semitones int) float64 {
	s, _ := theory.LookupSruthi(tonic)
	return theory.Frequency(s.Frequency, semitones)
}

func TestDefaults(t *testing.T) {
	c, _, _ := newTest(t)
	s := c.Snapshot()
	if s.Mode != Trainer || s.Tonic.Kattai != "1" || s.Raga.ID != "shankarabharanam" {
		t.Fatalf("defaults = %+v", s)
	}
	if s.Pulse != 3 || s.Volume != 0.5 {
		t.Fatalf("pulse %d volume %v", s.Pulse, s.Volume)
	}
	if s.Active != nil || s.Cursor != nil || s.Frequency != nil || s.Looping {
		t.Fatalf("idle snapshot has live fields: %+v", s)
	}
	if len(s.Scale) != theory.NumSwaras {
		t.Fatalf("scale has %d entries", len(s.Scale))
	}
}

func TestTapTogglesTrainerNote(t *testing.T) {
	c, tone, _ := newTest(t)

	if err := c.Tap(theory.Pa); err != nil {
		t.Fatal(err)
	}
	got := tone.last()
	if got.op != "tone" || !near(got.freq, freq("1", 7)) || got.arg != 3 {
		t.Fatalf("tap Pa: %+v", got)
	}
	s := c.Snapshot()
	if s.Active == nil || s.Active.ID != theory.Pa || s.Frequency == nil || !near(*s.Frequency, got.freq) {
		t.Fatalf("snapshot after tap: %+v", s)
	}

	// A different swara replaces the note without a separate stop.
	c.Tap(theory.Ri)
	if tone.last().op != "tone" || len(tone.ops("stop")) != 0 {
		t.Fatalf("switch: %+v", tone.calls)
	}

	// Same swara again stops with the release fade.
	c.Tap(theory.Ri)
	if got := tone.last(); got.op != "stop" || got.arg != 0 {
		t.Fatalf("second tap: %+v", got)
	}
	s = c.Snapshot()
	if s.Active != nil || s.Frequency != nil {
		t.Fatalf("snapshot after toggle off: %+v", s)
	}
}

func TestRagaSwitchMidNote(t *testing.T) {
	c, tone, _ := newTest(t)
	c.SelectRaga("mayamalavagowla")
	c.Tap(theory.Ga)
	if !near(tone.last().freq, freq("1", 4)) {
		t.Fatalf("Ga3 = %v", tone.last().freq)
	}

	if err := c.SelectRaga("kharaharapriya"); err != nil {
		t.Fatal(err)
	}
	got := tone.last()
	if got.op != "tone" || !near(got.freq, freq("1", 3)) {
		t.Fatalf("after raga switch: %+v", got)
	}
	s := c.Snapshot()
	if s.Active == nil || s.Active.ID != theory.Ga || s.Active.Semitones != 3 {
		t.Fatalf("active = %+v", s.Active)
	}
}

// recBackend records voices allocated on a real context.
type recBackend struct {
	*audio.Context
	voices []*audio.Voice
}

func (r *recBackend) NewVoice(freq float64) *audio.Voice {
	v := r.Context.NewVoice(freq)
	r.voices = append(r.voices, v)
	return v
}

func TestRagaSwitchMidNoteKeepsSounding(t *testing.T) {
	b := &recBackend{Context: audio.NewContext(audio.WithSampleRate(8000))}
	eng, err := engine.New(func() (engine.Backend, error) { return b, nil }, timer.NewManual(), engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c := New(eng, timer.NewManual())
	c.SelectPulse(0)
	c.SelectRaga("mayamalavagowla")
	c.Tap(theory.Ga)

	c.SelectRaga("kharaharapriya")
	if !eng.Sounding() {
		t.Fatal("tone stopped on raga switch")
	}
	if len(b.voices) != 2 {
		t.Fatalf("%d voices allocated", len(b.voices))
	}
	if f := b.voices[0].Frequency(); !near(f, freq("1", 4)) {
		t.Fatalf("first voice at %v", f)
	}
	if f := b.voices[1].Frequency(); !near(f, freq("1", 3)) {
		t.Fatalf("second voice at %v", f)
	}
	if b.Voices() != 2 {
		t.Fatalf("%d voices connected, want old fading plus new", b.Voices())
	}
}

func TestTonicAndPulseRestartNote(t *testing.T) {
	c, tone, _ := newTest(t)
	c.Tap(theory.Sa)

	c.SelectTonic("5")
	if got := tone.last(); got.op != "tone" || !near(got.freq, freq("5", 0)) {
		t.Fatalf("tonic change: %+v", got)
	}
	c.SelectPulse(0)
	if got := tone.last(); got.op != "tone" || got.arg != 0 {
		t.Fatalf("pulse change: %+v", got)
	}

	// Nothing sounding: selections only.
	c.Stop()
	n := len(tone.calls)
	c.SelectTonic("2")
	c.SelectRaga("kalyani")
	c.SelectPulse(7)
	if len(tone.calls) != n {
		t.Fatalf("idle selection touched the engine: %+v", tone.calls[n:])
	}
}

func TestInvalidSelectorsLeaveStateUnchanged(t *testing.T) {
	c, tone, _ := newTest(t)
	c.Tap(theory.Ma)
	before := c.Snapshot()
	n := len(tone.calls)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"tonic", c.SelectTonic("13"), ErrUnknownTonic},
		{"raga", c.SelectRaga("bhairavi"), ErrUnknownRaga},
		{"pulse", c.SelectPulse(4), ErrInvalidPulse},
		{"negative pulse", c.SelectPulse(-3), ErrInvalidPulse},
		{"swara", c.Tap(theory.SwaraID(8)), ErrUnknownSwara},
		{"volume", c.SetVolume(1.5), ErrInvalidVolume},
		{"nan volume", c.SetVolume(math.NaN()), ErrInvalidVolume},
		{"mode", c.SetMode(Mode(7)), ErrUnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Fatalf("err = %v, want %v", tt.err, tt.want)
			}
		})
	}

	after := c.Snapshot()
	if after.Tonic != before.Tonic || after.Raga != before.Raga || after.Pulse != before.Pulse || after.Volume != before.Volume {
		t.Fatalf("state changed: %+v -> %+v", before, after)
	}
	if after.Active == nil || after.Active.ID != theory.Ma {
		t.Fatalf("active = %+v", after.Active)
	}
	if len(tone.calls) != n {
		t.Fatalf("engine called: %+v", tone.calls[n:])
	}
}

func TestSetVolume(t *testing.T) {
	c, tone, _ := newTest(t)
	if err := c.SetVolume(0.8); err != nil {
		t.Fatal(err)
	}
	if got := tone.last(); got.op != "volume" || got.arg != 0.8 {
		t.Fatalf("%+v", got)
	}
	if c.Snapshot().Volume != 0.8 {
		t.Fatal("volume not stored")
	}
}

func TestModeSwitchStopsEverything(t *testing.T) {
	c, tone, clock := newTest(t)
	c.Tap(theory.Da)

	if m := c.ToggleMode(); m != Looper {
		t.Fatalf("ToggleMode = %v", m)
	}
	if got := tone.ops("stop"); len(got) != 1 || got[0].arg != 1 {
		t.Fatalf("stops = %+v", got)
	}
	s := c.Snapshot()
	if s.Mode != Looper || s.Active != nil {
		t.Fatalf("after switch: %+v", s)
	}

	c.Tap(theory.Sa)
	c.ToggleLoop()
	if clock.Pending() != 1 {
		t.Fatalf("pending = %d", clock.Pending())
	}
	c.SetMode(Trainer)
	if clock.Pending() != 0 || c.Snapshot().Looping {
		t.Fatal("loop survived mode switch")
	}
	if c.Snapshot().Sequence[0].ID != theory.Sa {
		t.Fatal("sequence lost on mode switch")
	}
}

func TestLooperTapAppendsAndPreviews(t *testing.T) {
	c, tone, _ := newTest(t)
	c.SetMode(Looper)
	tone.calls = nil

	c.Tap(theory.Ga)
	c.Tap(theory.Ga)
	if got := tone.ops("oneshot"); len(got) != 2 || got[0].arg != PreviewDuration || !near(got[0].freq, freq("1", 4)) {
		t.Fatalf("previews = %+v", got)
	}
	if len(tone.ops("tone")) != 0 {
		t.Fatal("looper tap started a sustained tone")
	}
	if n := len(c.Snapshot().Sequence); n != 2 {
		t.Fatalf("sequence length %d", n)
	}
}

func TestLooperFreezesOffsets(t *testing.T) {
	c, _, _ := newTest(t)
	c.SetMode(Looper)
	c.SelectRaga("mayamalavagowla")
	c.Tap(theory.Ri)
	c.Tap(theory.Ga)
	c.Tap(theory.Da)

	c.SelectRaga("kalyani")
	seq := c.Snapshot().Sequence
	want := []int{1, 4, 8}
	for i, s := range seq {
		if s.Semitones != want[i] {
			t.Fatalf("entry %d = %d semitones, want %d", i, s.Semitones, want[i])
		}
	}
}

func TestLoopCursorFollowsTonic(t *testing.T) {
	c, tone, clock := newTest(t)
	c.SetMode(Looper)
	c.Tap(theory.Sa)
	c.Tap(theory.Ga)
	c.Tap(theory.Pa)
	tone.calls = nil

	on, err := c.ToggleLoop()
	if !on || err != nil {
		t.Fatalf("ToggleLoop = %v, %v", on, err)
	}
	cursors := []int{*c.Snapshot().Cursor}
	for i := 0; i < 4; i++ {
		if i == 2 {
			c.SelectTonic("3")
		}
		clock.Advance(LoopInterval)
		cursors = append(cursors, *c.Snapshot().Cursor)
	}
	if want := []int{0, 1, 2, 0, 1}; !equal(cursors, want) {
		t.Fatalf("cursor = %v, want %v", cursors, want)
	}

	shots := tone.ops("oneshot")
	wantFreq := []float64{freq("1", 0), freq("1", 4), freq("1", 7), freq("3", 0), freq("3", 4)}
	if len(shots) != len(wantFreq) {
		t.Fatalf("%d one-shots", len(shots))
	}
	for i, s := range shots {
		if !near(s.freq, wantFreq[i]) || s.arg != LoopNoteDuration {
			t.Fatalf("shot %d = %+v, want %v Hz", i, s, wantFreq[i])
		}
	}
	if f := c.Snapshot().Frequency; f == nil || !near(*f, wantFreq[4]) {
		t.Fatalf("frequency = %v", f)
	}
}

func TestLoopStop(t *testing.T) {
	c, tone, clock := newTest(t)
	c.SetMode(Looper)
	c.Tap(theory.Ni)
	c.ToggleLoop()
	clock.Advance(LoopInterval)

	on, _ := c.ToggleLoop()
	if on {
		t.Fatal("loop still on")
	}
	s := c.Snapshot()
	if s.Looping || s.Cursor != nil || s.Frequency != nil {
		t.Fatalf("after stop: %+v", s)
	}
	if got := tone.last(); got.op != "stop" || got.arg != 1 {
		t.Fatalf("last call %+v", got)
	}
	n := len(tone.calls)
	clock.Advance(5 * LoopInterval)
	if len(tone.calls) != n {
		t.Fatal("loop ticked after stop")
	}
}

func TestLoopEdgeCases(t *testing.T) {
	c, tone, clock := newTest(t)

	if _, err := c.ToggleLoop(); !errors.Is(err, ErrNotLooper) {
		t.Fatalf("trainer ToggleLoop err = %v", err)
	}
	c.SetMode(Looper)
	if on, err := c.ToggleLoop(); on || err != nil {
		t.Fatalf("empty ToggleLoop = %v, %v", on, err)
	}
	if clock.Pending() != 0 || len(tone.ops("oneshot")) != 0 {
		t.Fatal("empty loop scheduled work")
	}

	c.Tap(theory.Sa)
	c.Tap(theory.Ri)
	c.ToggleLoop()
	clock.Advance(LoopInterval)
	c.Backspace()
	if cur := c.Snapshot().Cursor; cur == nil || *cur != 0 {
		t.Fatalf("cursor after backspace = %v", cur)
	}
	c.Backspace()
	if c.Snapshot().Looping || clock.Pending() != 0 {
		t.Fatal("loop kept running on empty sequence")
	}
	c.Backspace()

	c.Tap(theory.Ma)
	c.ToggleLoop()
	c.Clear()
	s := c.Snapshot()
	if s.Looping || len(s.Sequence) != 0 || s.Cursor != nil {
		t.Fatalf("after clear: %+v", s)
	}
}

// flakyBackend is a real context whose Resume can be made to fail.
type flakyBackend struct {
	recBackend
	resumeErr error
}

func (f *flakyBackend) Resume() error {
	if f.resumeErr != nil {
		return f.resumeErr
	}
	return f.Context.Resume()
}

func TestResumeRejectionKeepsSoundingNote(t *testing.T) {
	b := &flakyBackend{recBackend: recBackend{Context: audio.NewContext(audio.WithSampleRate(8000))}}
	eng, err := engine.New(func() (engine.Backend, error) { return b, nil }, timer.NewManual(), engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c := New(eng, timer.NewManual())
	c.SelectPulse(0)
	if err := c.Tap(theory.Ga); err != nil {
		t.Fatal(err)
	}

	b.resumeErr = errors.New("not allowed")
	err = c.Tap(theory.Ri)
	if !errors.Is(err, ErrAudio) || !errors.Is(err, engine.ErrResume) {
		t.Fatalf("err = %v", err)
	}
	s := c.Snapshot()
	if s.Active == nil || s.Active.ID != theory.Ga || s.Frequency == nil || !near(*s.Frequency, freq("1", 4)) {
		t.Fatalf("snapshot after rejection = %+v", s)
	}
	if s.AudioErr == "" {
		t.Fatal("rejection not reported")
	}
	if !eng.Sounding() || len(b.voices) != 1 || !near(b.voices[0].Frequency(), freq("1", 4)) {
		t.Fatalf("engine sounding=%v voices=%d", eng.Sounding(), len(b.voices))
	}

	// A restart that the engine rejects leaves the old note in place too.
	if err := c.SelectTonic("5"); !errors.Is(err, engine.ErrResume) {
		t.Fatalf("tonic err = %v", err)
	}
	if s := c.Snapshot(); s.Tonic.Kattai != "5" || s.Active == nil || !near(*s.Frequency, freq("1", 4)) {
		t.Fatalf("snapshot after tonic = %+v", s)
	}
}

func TestRetryAfterResumeRejection(t *testing.T) {
	b := &flakyBackend{recBackend: recBackend{Context: audio.NewContext(audio.WithSampleRate(8000))}}
	eng, err := engine.New(func() (engine.Backend, error) { return b, nil }, timer.NewManual(), engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c := New(eng, timer.NewManual())
	c.SelectPulse(0)
	c.Tap(theory.Ga)

	b.resumeErr = errors.New("not allowed")
	c.Tap(theory.Ri)
	b.resumeErr = nil

	// Tapping the same swara again retries instead of toggling off.
	if err := c.Tap(theory.Ri); err != nil {
		t.Fatal(err)
	}
	s := c.Snapshot()
	if s.Active == nil || s.Active.ID != theory.Ri || s.AudioErr != "" {
		t.Fatalf("snapshot = %+v", s)
	}
	if !eng.Sounding() || len(b.voices) != 2 || !near(b.voices[1].Frequency(), freq("1", 2)) {
		t.Fatalf("engine sounding=%v voices=%d", eng.Sounding(), len(b.voices))
	}
}

func TestUnavailableKeepsSilentSelection(t *testing.T) {
	opens := 0
	open := func() (engine.Backend, error) {
		opens++
		return nil, errors.New("no device")
	}
	eng, err := engine.New(open, timer.NewManual(), engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	c := New(eng, timer.NewManual())

	err = c.Tap(theory.Ga)
	if !errors.Is(err, ErrAudio) || !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	s := c.Snapshot()
	if s.Active == nil || s.Active.ID != theory.Ga || s.AudioErr == "" {
		t.Fatalf("snapshot = %+v", s)
	}
	if eng.Sounding() {
		t.Fatal("engine sounding without a backend")
	}

	// Selection changes follow the silent note without another attempt.
	if err := c.SelectTonic("5"); err != nil {
		t.Fatal(err)
	}
	if s := c.Snapshot(); s.Frequency == nil || !near(*s.Frequency, freq("5", 4)) {
		t.Fatalf("snapshot after tonic = %+v", s)
	}
	if opens != 1 {
		t.Fatalf("backend opened %d times", opens)
	}

	c.Tap(theory.Ga)
	if s := c.Snapshot(); s.Active != nil {
		t.Fatalf("second tap did not stop: %+v", s)
	}
}

func TestFailedTapDoesNotRetryOnSelect(t *testing.T) {
	c, tone, _ := newTest(t)
	tone.err = errors.New("device gone")
	if err := c.Tap(theory.Ga); !errors.Is(err, ErrAudio) {
		t.Fatalf("err = %v", err)
	}
	if s := c.Snapshot(); s.Active != nil || s.Frequency != nil {
		t.Fatalf("snapshot = %+v", s)
	}

	c.SelectTonic("5")
	c.SelectPulse(0)
	if n := len(tone.ops("tone")); n != 1 {
		t.Fatalf("PlayTone called %d times", n)
	}

	c.SetMode(Looper)
	c.Tap(theory.Pa)
	if n := len(c.Snapshot().Sequence); n != 1 {
		t.Fatalf("failed preview dropped the entry: %d", n)
	}
}

// quietTone is safe for concurrent use.
type quietTone struct{}

func (quietTone) SetVolume(float64) error            { return nil }
func (quietTone) PlayTone(float64, float64) error    { return nil }
func (quietTone) PlayOneShot(float64, float64) error { return nil }
func (quietTone) StopTone(bool)                      {}

func TestToggleModeConcurrent(t *testing.T) {
	c := New(quietTone{}, timer.NewManual())
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		looper int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.ToggleMode() == Looper {
				mu.Lock()
				looper++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if looper != 25 {
		t.Fatalf("%d toggles landed on looper", looper)
	}
	if m := c.Snapshot().Mode; m != Trainer {
		t.Fatalf("mode = %v", m)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	c, tone, clock := newTest(t)
	c.SetMode(Looper)
	c.Tap(theory.Sa)
	c.ToggleLoop()
	c.Close()
	if clock.Pending() != 0 {
		t.Fatalf("%d timers pending", clock.Pending())
	}
	if l := tone.last(); l.op != "stop" || l.arg != 1 {
		t.Fatalf("last call = %+v", l)
	}
	s := c.Snapshot()
	if s.Looping || s.Mode != Looper || len(s.Sequence) != 1 {
		t.Fatalf("snapshot = %+v", s)
	}

	c.SetMode(Trainer)
	c.Tap(theory.Ga)
	c.Close()
	if s := c.Snapshot(); s.Active != nil || s.Frequency != nil {
		t.Fatalf("trainer note survived: %+v", s)
	}
}

func TestSnapshotJSON(t *testing.T) {
	c, _, _ := newTest(t)
	c.SetMode(Looper)
	c.Tap(theory.HighSa)
	c.ToggleLoop()

	b, err := json.Marshal(c.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Mode     string `json:"mode"`
		Cursor   *int   `json:"cursor"`
		Looping  bool   `json:"looping"`
		Sequence []struct {
			Key string `json:"key"`
		} `json:"sequence"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Mode != "looper" || got.Cursor == nil || *got.Cursor != 0 || !got.Looping {
		t.Fatalf("decoded %s", b)
	}
	if len(got.Sequence) != 1 || got.Sequence[0].Key != "sa-high" {
		t.Fatalf("sequence %s", b)
	}
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{Trainer, Looper} {
		p, err := ParseMode(m.String())
		if err != nil || p != m {
			t.Fatalf("ParseMode(%q) = %v, %v", m, p, err)
		}
	}
	if _, err := ParseMode("drone"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v", err)
	}
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
