package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/mira/internal/command"
	"github.com/MrWong99/mira/internal/conditioner"
	"github.com/MrWong99/mira/internal/dispatch"
	"github.com/MrWong99/mira/internal/health"
	"github.com/MrWong99/mira/internal/normalize"
	"github.com/MrWong99/mira/pkg/audio"
	audiomock "github.com/MrWong99/mira/pkg/audio/mock"
	execmock "github.com/MrWong99/mira/pkg/provider/executor/mock"
	recmock "github.com/MrWong99/mira/pkg/provider/recognizer/mock"
	relaymock "github.com/MrWong99/mira/pkg/provider/relay/mock"
)

const rate = conditioner.DefaultSampleRate

// voiced returns a frame at the Nyquist frequency, which passes the
// high-pass filter almost unattenuated.
func voiced() audio.Frame {
	s := make([]int16, 320)
	for i := range s {
		if i%2 == 0 {
			s[i] = 8000
		} else {
			s[i] = -8000
		}
	}
	return audio.Frame{Samples: s, SampleRate: rate}
}

func silent() audio.Frame {
	return audio.Frame{Samples: make([]int16, 320), SampleRate: rate}
}

type routed struct {
	text   string
	ctxErr error
	ready  bool
}

// recordingRouter captures every transcript it is handed.
type recordingRouter struct {
	mu    sync.Mutex
	flag  *health.Flag
	calls []routed
}

func (r *recordingRouter) Route(ctx context.Context, transcript string) dispatch.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := routed{text: transcript, ctxErr: ctx.Err()}
	if r.flag != nil {
		c.ready = r.flag.Ready()
	}
	r.calls = append(r.calls, c)
	return dispatch.Outcome{State: dispatch.StateSkipped, Transcript: transcript}
}

func (r *recordingRouter) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.text
	}
	return out
}

func newPipeline(t *testing.T, src audio.Source, rec *recmock.Recognizer, router Router, opts ...Option) *Pipeline {
	t.Helper()
	cond, err := conditioner.New(conditioner.Config{
		SampleRate: rate,
		CutoffHz:   conditioner.DefaultCutoffHz,
		Threshold:  conditioner.DefaultThreshold,
	})
	if err != nil {
		t.Fatalf("conditioner.New: %v", err)
	}
	p, err := New(src, cond, rec, router, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestRun_OnlyVoicedFramesReachRecognizer(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{Steps: []audiomock.Step{
		{Frame: silent()},
		{Frame: voiced()},
		{Frame: silent()},
		{Frame: silent()},
	}}
	rec := &recmock.Recognizer{Script: []string{"avance"}}
	router := &recordingRouter{}

	if err := newPipeline(t, src, rec, router).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.FrameCount(); got != 1 {
		t.Errorf("AcceptFrame calls = %d, want 1", got)
	}
	if got := len(rec.Silences); got != 3 {
		t.Errorf("Silence calls = %d, want 3", got)
	}
	for _, d := range rec.Silences {
		if d != silent().Duration() {
			t.Errorf("silence duration = %v, want %v", d, silent().Duration())
		}
	}
	if got := router.texts(); !slices.Equal(got, []string{"avance"}) {
		t.Errorf("routed = %q, want [avance]", got)
	}
	if rec.CallCountFinalResult != 1 {
		t.Errorf("FinalResult calls = %d, want 1", rec.CallCountFinalResult)
	}
}

func TestRun_SilenceCompletesUtterance(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{Steps: []audiomock.Step{
		{Frame: voiced()},
		{Frame: silent()},
	}}
	rec := &recmock.Recognizer{Script: []string{""}, SilenceScript: []string{"recule"}}
	router := &recordingRouter{}

	if err := newPipeline(t, src, rec, router).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := router.texts(); !slices.Equal(got, []string{"recule"}) {
		t.Errorf("routed = %q, want [recule]", got)
	}
}

func TestRun_CancelFlushesOnce(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &audiomock.Source{Steps: []audiomock.Step{
		{Frame: voiced()},
		{Frame: voiced(), Before: cancel},
		{Frame: voiced()},
	}}
	rec := &recmock.Recognizer{Final: "stop"}
	router := &recordingRouter{}

	if err := newPipeline(t, src, rec, router).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.FrameCount(); got != 1 {
		t.Errorf("AcceptFrame calls = %d, want 1", got)
	}
	if got := src.Reads(); got != 2 {
		t.Errorf("ReadFrame calls = %d, want 2", got)
	}
	if rec.CallCountFinalResult != 1 {
		t.Errorf("FinalResult calls = %d, want 1", rec.CallCountFinalResult)
	}
	if len(router.calls) != 1 {
		t.Fatalf("routed %d transcripts, want 1", len(router.calls))
	}
	if c := router.calls[0]; c.text != "stop" || c.ctxErr != nil {
		t.Errorf("final route = %+v, want text stop with live context", c)
	}
}

func TestRun_CancelWhileBlocked(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	src := &audiomock.Source{
		Steps: []audiomock.Step{{Frame: voiced(), Before: func() {}}},
		Block: true,
	}
	rec := &recmock.Recognizer{}
	router := &recordingRouter{}

	done := make(chan error, 1)
	go func() { done <- newPipeline(t, src, rec, router).Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(router.calls) != 0 {
		t.Errorf("routed %q, want nothing for an empty final result", router.texts())
	}
}

func TestRun_OverflowIsNotFatal(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{Steps: []audiomock.Step{
		{Frame: voiced(), Err: audio.ErrOverflow},
		{Err: audio.ErrOverflow},
		{Frame: voiced()},
	}}
	rec := &recmock.Recognizer{Script: []string{"", "gauche"}}
	router := &recordingRouter{}

	if err := newPipeline(t, src, rec, router).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.FrameCount(); got != 2 {
		t.Errorf("AcceptFrame calls = %d, want 2", got)
	}
	if got := router.texts(); !slices.Equal(got, []string{"gauche"}) {
		t.Errorf("routed = %q, want [gauche]", got)
	}
}

// dc returns a constant frame. The high-pass filter passes the step from
// silence and then settles to zero within one frame.
func dc() audio.Frame {
	s := make([]int16, 320)
	for i := range s {
		s[i] = 8000
	}
	return audio.Frame{Samples: s, SampleRate: rate}
}

func TestRun_OverflowResetsFilter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"contiguous frames settle", nil, 1},
		{"overflow restarts the step", audio.ErrOverflow, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := &audiomock.Source{Steps: []audiomock.Step{
				{Frame: dc()},
				{Frame: dc(), Err: tc.err},
			}}
			rec := &recmock.Recognizer{}

			if err := newPipeline(t, src, rec, &recordingRouter{}).Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := rec.FrameCount(); got != tc.want {
				t.Errorf("AcceptFrame calls = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRun_RepeatedReadErrorsAbort(t *testing.T) {
	t.Parallel()
	errRead := errors.New("device gone")
	src := &audiomock.Source{Steps: []audiomock.Step{
		{Err: errRead},
		{Err: errRead},
		{Err: errRead},
		{Frame: voiced()},
	}}
	rec := &recmock.Recognizer{}

	err := newPipeline(t, src, rec, &recordingRouter{}, WithMaxReadErrors(3)).Run(context.Background())
	if !errors.Is(err, ErrSourceFailed) || !errors.Is(err, errRead) {
		t.Fatalf("Run error = %v, want ErrSourceFailed wrapping %v", err, errRead)
	}
	if rec.CallCountFinalResult != 1 {
		t.Errorf("FinalResult calls = %d, want 1", rec.CallCountFinalResult)
	}
}

func TestRun_ReadErrorCounterResets(t *testing.T) {
	t.Parallel()
	errRead := errors.New("glitch")
	src := &audiomock.Source{Steps: []audiomock.Step{
		{Err: errRead},
		{Frame: silent()},
		{Err: errRead},
		{Frame: silent()},
	}}

	err := newPipeline(t, src, &recmock.Recognizer{}, &recordingRouter{}, WithMaxReadErrors(2)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_InvalidFrameSkipped(t *testing.T) {
	t.Parallel()
	bad := voiced()
	bad.SampleRate = 8000
	src := &audiomock.Source{Steps: []audiomock.Step{
		{Frame: bad},
		{Frame: audio.Frame{SampleRate: rate}},
		{Frame: voiced()},
	}}
	rec := &recmock.Recognizer{Script: []string{"avance"}}
	router := &recordingRouter{}

	if err := newPipeline(t, src, rec, router).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.FrameCount(); got != 1 {
		t.Errorf("AcceptFrame calls = %d, want 1", got)
	}
	if got := router.texts(); !slices.Equal(got, []string{"avance"}) {
		t.Errorf("routed = %q, want [avance]", got)
	}
}

func TestRun_MalformedResultRoutesEmpty(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{Steps: []audiomock.Step{{Frame: voiced()}}}
	rec := &recmock.Recognizer{
		Script:     []string{"ignored"},
		RawResults: []string{`{"text": 42`},
	}
	router := &recordingRouter{}

	if err := newPipeline(t, src, rec, router).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := router.texts(); !slices.Equal(got, []string{""}) {
		t.Errorf("routed = %q, want one empty transcript", got)
	}
}

func TestRun_AcceptErrorIsNotFatal(t *testing.T) {
	t.Parallel()
	src := &audiomock.Source{Steps: []audiomock.Step{{Frame: voiced()}, {Frame: voiced()}}}
	rec := &recmock.Recognizer{AcceptErr: errors.New("decoder hiccup")}

	if err := newPipeline(t, src, rec, &recordingRouter{}).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.FrameCount(); got != 2 {
		t.Errorf("AcceptFrame calls = %d, want 2", got)
	}
}

func TestRun_ReadyFlag(t *testing.T) {
	t.Parallel()
	flag := &health.Flag{}
	src := &audiomock.Source{Steps: []audiomock.Step{{Frame: voiced()}}}
	rec := &recmock.Recognizer{Script: []string{"stop"}}
	router := &recordingRouter{flag: flag}

	if err := newPipeline(t, src, rec, router, WithReadyFlag(flag)).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(router.calls) != 1 || !router.calls[0].ready {
		t.Errorf("flag not set while routing: %+v", router.calls)
	}
	if flag.Ready() {
		t.Error("flag still set after Run returned")
	}
}

func TestRun_EndToEndDispatch(t *testing.T) {
	t.Parallel()
	n := normalize.New()
	table, _ := command.DefaultTable().Normalize(n.Normalize)
	exec := &execmock.Executor{}
	rel := &relaymock.Relay{Response: "Bonjour."}
	router, err := dispatch.NewRouter(command.NewMatcher(table), n, exec, rel)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	src := &audiomock.Source{Steps: []audiomock.Step{
		{Frame: voiced()},
		{Frame: voiced()},
	}}
	rec := &recmock.Recognizer{
		Script: []string{"Avance !", "raconte une blague"},
		Final:  "arrête",
	}

	if err := newPipeline(t, src, rec, router).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := exec.Calls(); !slices.Equal(got, []string{"AVANCER", "STOP"}) {
		t.Errorf("executed = %q, want [AVANCER STOP]", got)
	}
	if got := rel.Prompts(); !slices.Equal(got, []string{"raconte une blague"}) {
		t.Errorf("relay prompts = %q, want [raconte une blague]", got)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	cond, _ := conditioner.New(conditioner.Config{SampleRate: rate, CutoffHz: 200, Threshold: 350})
	src := &audiomock.Source{}
	rec := &recmock.Recognizer{}
	router := &recordingRouter{}

	tests := []struct {
		name   string
		src    audio.Source
		cond   *conditioner.Conditioner
		rec    *recmock.Recognizer
		router Router
	}{
		{name: "no source", cond: cond, rec: rec, router: router},
		{name: "no conditioner", src: src, rec: rec, router: router},
		{name: "no router", src: src, cond: cond, rec: rec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.src, tt.cond, tt.rec, tt.router); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := New(src, cond, nil, router); err == nil {
		t.Error("expected error for nil recognizer")
	}
}
