package server

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amanullahtanweer/fluency-coach/internal/analysis"
	"github.com/amanullahtanweer/fluency-coach/internal/audio"
	"github.com/amanullahtanweer/fluency-coach/internal/transcriber"
)

// fakeTranscriber emits its scripted segments on the first audio frame.
type fakeTranscriber struct {
	mu        sync.Mutex
	script    []transcriber.Segment
	results   chan transcriber.Segment
	words     []*analysis.Word
	audio     int
	markers   []string
	emitted   bool
	closeOnce sync.Once
}

func newFakeTranscriber(script ...transcriber.Segment) *fakeTranscriber {
	return &fakeTranscriber{script: script, results: make(chan transcriber.Segment, len(script)+1)}
}

func (f *fakeTranscriber) ProcessAudio(audioData []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio += len(audioData)
	if f.emitted {
		return nil
	}
	f.emitted = true
	for _, seg := range f.script {
		if seg.IsFinal {
			f.words = append(f.words, seg.Words...)
		}
		f.results <- seg
	}
	return nil
}

func (f *fakeTranscriber) Results() <-chan transcriber.Segment { return f.results }

func (f *fakeTranscriber) Words() []*analysis.Word {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*analysis.Word(nil), f.words...)
}

func (f *fakeTranscriber) Transcript() string { return "" }

func (f *fakeTranscriber) AddMarker(marker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers = append(f.markers, marker)
}

func (f *fakeTranscriber) Close() error {
	f.closeOnce.Do(func() { close(f.results) })
	return nil
}

type countingRecorder struct {
	mu             sync.Mutex
	started, ended int
}

func (c *countingRecorder) SessionStarted(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *countingRecorder) SessionEnded(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended++
}

// signalRecorder reports each session start on a channel.
type signalRecorder struct {
	started chan struct{}
}

func (r signalRecorder) SessionStarted(ctx context.Context) { r.started <- struct{}{} }

func (r signalRecorder) SessionEnded(ctx context.Context) {}

func coachingScript() []transcriber.Segment {
	words := []*analysis.Word{
		analysis.NewWord("um", 0, 300, 0.9),
		analysis.NewWord("I", 300, 500, 0.9),
		analysis.NewWord("I", 500, 700, 0.9),
		analysis.NewWord("think", 700, 1000, 0.95),
	}
	return []transcriber.Segment{
		{Text: "um I"},
		{Text: "um I I think", IsFinal: true, Words: words},
	}
}

func newTestServer(t *testing.T, cfg Config, tr *fakeTranscriber, deps Deps) *Server {
	t.Helper()
	deps.NewTranscriber = func() (transcriber.Transcriber, error) { return tr, nil }
	deps.Analysis = analysis.NewService(analysis.NewAnalyzer(analysis.DefaultVocabulary()), zerolog.Nop(), nil)
	deps.Log = zerolog.Nop()
	if cfg.Provider == "" {
		cfg.Provider = "fake"
	}
	s, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

// serveConn runs one call over an in-memory pipe and returns the caller end.
func serveConn(s *Server) (net.Conn, <-chan struct{}) {
	serverConn, callerConn := net.Pipe()
	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer close(done)
		s.handleConnection(serverConn)
	}()
	return callerConn, done
}

// idMessage frames a KindID message carrying the call uuid.
func idMessage(id uuid.UUID) []byte {
	msg := []byte{byte(audiosocket.KindID), 0, 0}
	binary.BigEndian.PutUint16(msg[1:], uint16(len(id)))
	return append(msg, id[:]...)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

type record struct {
	Event      string                `json:"event"`
	SessionID  string                `json:"session_id"`
	Text       string                `json:"text"`
	Words      int                   `json:"words"`
	Statistics *analysis.Statistics  `json:"statistics"`
	Events     []analysis.Disfluency `json:"disfluencies"`
	Details    map[string]string     `json:"details"`
}

func readSessionLog(t *testing.T, dir string) []record {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*_session_*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("Expected one session log, got %v (err %v)", files, err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var out []record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("Invalid log line %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func events(recs []record) []string {
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Event
	}
	return names
}

func find(recs []record, event string) *record {
	for i := range recs {
		if recs[i].Event == event {
			return &recs[i]
		}
	}
	return nil
}

func TestNewValidatesDeps(t *testing.T) {
	svc := analysis.NewService(analysis.NewAnalyzer(analysis.DefaultVocabulary()), zerolog.Nop(), nil)
	factory := func() (transcriber.Transcriber, error) { return newFakeTranscriber(), nil }

	if _, err := New(Config{}, Deps{Analysis: svc}); err == nil {
		t.Error("Expected error without a transcriber factory")
	}
	if _, err := New(Config{}, Deps{NewTranscriber: factory}); err == nil {
		t.Error("Expected error without an analysis service")
	}

	player, err := audio.NewPlayer(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{PromptFile: "missing.wav"}, Deps{NewTranscriber: factory, Analysis: svc, Player: player}); err == nil {
		t.Error("Expected error for a prompt that is not loaded")
	}
}

func TestSessionAnalyzesCallOnHangup(t *testing.T) {
	logDir := t.TempDir()
	tr := newFakeTranscriber(coachingScript()...)
	rec := &countingRecorder{}
	s := newTestServer(t, Config{LogDir: logDir}, tr, Deps{Recorder: rec})

	caller, done := serveConn(s)
	defer caller.Close()

	id := uuid.New()
	frames := [][]byte{
		idMessage(id),
		audiosocket.SlinMessage(make([]byte, 320)),
		audiosocket.SlinMessage(make([]byte, 320)),
		audiosocket.HangupMessage(),
	}
	for _, f := range frames {
		if _, err := caller.Write(f); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	waitDone(t, done)

	tr.mu.Lock()
	if tr.audio != 640 {
		t.Errorf("Expected 640 audio bytes, got %d", tr.audio)
	}
	tr.mu.Unlock()

	recs := readSessionLog(t, logDir)
	want := []string{"session_start", "segment", "analysis", "hangup", "session_end"}
	if got := events(recs); len(got) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, got)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
			}
		}
	}

	for _, r := range recs {
		if r.SessionID != id.String() {
			t.Errorf("Expected session id %s, got %s", id, r.SessionID)
		}
	}

	if seg := find(recs, "segment"); seg == nil || seg.Text != "um I I think" || seg.Words != 4 {
		t.Errorf("Unexpected segment record %+v", seg)
	}

	res := find(recs, "analysis")
	if res == nil || res.Statistics == nil {
		t.Fatal("Expected analysis record with statistics")
	}
	if res.Text != "um I I think" {
		t.Errorf("Expected transcription, got %q", res.Text)
	}
	if res.Statistics.FillerCount != 1 || res.Statistics.StutterCount != 1 || res.Statistics.RepetitionCount != 1 {
		t.Errorf("Unexpected statistics %+v", *res.Statistics)
	}
	if len(res.Events) != 2 {
		t.Errorf("Expected 2 disfluencies, got %d", len(res.Events))
	}
	if res.Details["summary"] == "" {
		t.Error("Expected summary in analysis record")
	}

	if h := find(recs, "hangup"); h == nil || h.Details["reason"] != reasonCallerHangup {
		t.Errorf("Expected caller hangup, got %+v", h)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.started != 1 || rec.ended != 1 {
		t.Errorf("Expected 1 start and 1 end, got %d/%d", rec.started, rec.ended)
	}
}

func TestSessionMarkers(t *testing.T) {
	tr := newFakeTranscriber()
	s := newTestServer(t, Config{}, tr, Deps{})

	caller, done := serveConn(s)
	defer caller.Close()

	dtmf := []byte{byte(audiosocket.KindDTMF), 0, 1, '5'}
	silence := []byte{byte(audiosocket.KindSilence), 0, 0}
	for _, f := range [][]byte{idMessage(uuid.New()), dtmf, silence, audiosocket.HangupMessage()} {
		if _, err := caller.Write(f); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	waitDone(t, done)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.markers) != 2 || tr.markers[0] != "[DTMF: 5]" || tr.markers[1] != "[SILENCE]" {
		t.Errorf("Unexpected markers %v", tr.markers)
	}
}

func TestSessionIdleTimeout(t *testing.T) {
	logDir := t.TempDir()
	tr := newFakeTranscriber()
	s := newTestServer(t, Config{LogDir: logDir, IdleTimeout: 50 * time.Millisecond}, tr, Deps{})

	caller, done := serveConn(s)
	defer caller.Close()

	if _, err := caller.Write(idMessage(uuid.New())); err != nil {
		t.Fatal(err)
	}

	_ = caller.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := audiosocket.NextMessage(caller)
	if err != nil {
		t.Fatalf("Expected hangup command, got error %v", err)
	}
	if msg.Kind() != audiosocket.KindHangup {
		t.Fatalf("Expected hangup command, got kind %v", msg.Kind())
	}
	caller.Close()
	waitDone(t, done)

	recs := readSessionLog(t, logDir)
	if find(recs, "timeout") == nil {
		t.Errorf("Expected timeout record, got %v", events(recs))
	}
	if h := find(recs, "hangup"); h == nil || h.Details["reason"] != reasonIdleTimeout {
		t.Errorf("Expected idle_timeout reason, got %+v", h)
	}
	if a := find(recs, "analysis"); a == nil || a.Statistics == nil || a.Statistics.FluencyScore != 0 {
		t.Errorf("Expected empty analysis, got %+v", a)
	}
}

func TestSessionPlaysPrompt(t *testing.T) {
	audioDir := t.TempDir()
	pcm := make([]byte, 320)
	for i := range pcm {
		pcm[i] = 7
	}
	wav := append([]byte("RIFF\x00\x00\x00\x00WAVEdata"), 0x40, 0x01, 0, 0)
	wav = append(wav, pcm...)
	if err := os.WriteFile(filepath.Join(audioDir, "welcome.wav"), wav, 0o644); err != nil {
		t.Fatal(err)
	}
	player, err := audio.NewPlayer(audioDir, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	logDir := t.TempDir()
	s := newTestServer(t, Config{LogDir: logDir, PromptFile: "welcome.wav"}, newFakeTranscriber(), Deps{Player: player})

	caller, done := serveConn(s)
	defer caller.Close()

	if _, err := caller.Write(idMessage(uuid.New())); err != nil {
		t.Fatal(err)
	}

	_ = caller.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := audiosocket.NextMessage(caller)
	if err != nil {
		t.Fatalf("Expected prompt audio, got error %v", err)
	}
	if msg.Kind() != audiosocket.KindSlin || len(msg.Payload()) != 320 || msg.Payload()[0] != 7 {
		t.Fatalf("Unexpected prompt frame kind=%v len=%d", msg.Kind(), len(msg.Payload()))
	}

	if _, err := caller.Write(audiosocket.HangupMessage()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, done)

	p := find(readSessionLog(t, logDir), "prompt")
	if p == nil || p.Details["file"] != "welcome.wav" || p.Details["completed"] != "true" {
		t.Errorf("Unexpected prompt record %+v", p)
	}
}

func TestSessionTranscriberFailure(t *testing.T) {
	s := newTestServer(t, Config{}, newFakeTranscriber(), Deps{})
	s.deps.NewTranscriber = func() (transcriber.Transcriber, error) {
		return nil, errors.New("recognizer offline")
	}

	caller, done := serveConn(s)
	defer caller.Close()

	if _, err := caller.Write(idMessage(uuid.New())); err != nil {
		t.Fatal(err)
	}
	waitDone(t, done)

	if _, err := caller.Read(make([]byte, 1)); err == nil {
		t.Error("Expected the connection to be closed")
	}
}

func TestServeAndStop(t *testing.T) {
	rec := signalRecorder{started: make(chan struct{}, 1)}
	s := newTestServer(t, Config{}, newFakeTranscriber(), Deps{Recorder: rec})

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	served := make(chan error, 1)
	go func() { served <- s.Serve(l) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write(idMessage(uuid.New())); err != nil {
		t.Fatal(err)
	}

	select {
	case <-rec.started:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not start")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	// Stop asks the active call to hang up.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := audiosocket.NextMessage(conn)
	if err != nil || msg.Kind() != audiosocket.KindHangup {
		t.Fatalf("Expected hangup on shutdown, got %v %v", msg, err)
	}
	conn.Close()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if err := <-served; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}

// gatedListener hands out one connection, but only once release is closed.
type gatedListener struct {
	conn    net.Conn
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
	handed  bool
}

func (l *gatedListener) Accept() (net.Conn, error) {
	if l.handed {
		<-l.closed
		return nil, net.ErrClosed
	}
	<-l.release
	l.handed = true
	return l.conn, nil
}

func (l *gatedListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *gatedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

func TestServeDropsConnectionAcceptedAfterStop(t *testing.T) {
	s := newTestServer(t, Config{}, newFakeTranscriber(), Deps{})

	serverConn, callerConn := net.Pipe()
	defer callerConn.Close()
	l := &gatedListener{conn: serverConn, release: make(chan struct{}), closed: make(chan struct{})}

	served := make(chan error, 1)
	go func() { served <- s.Serve(l) }()

	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("Serve did not start")
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	close(l.release)

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	_ = callerConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := callerConn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("Expected late connection to be closed, got %v", err)
	}
}

func TestIdleTimer(t *testing.T) {
	timer := NewIdleTimer(30 * time.Millisecond)
	if timer.IsActive() {
		t.Error("New timer should be stopped")
	}

	timer.Reset()
	if timer.IsActive() {
		t.Error("Reset must not arm a stopped timer")
	}

	timer.Start()
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}

	timer.Start()
	timer.Stop()
	select {
	case <-timer.C():
		t.Error("stopped timer fired")
	case <-time.After(80 * time.Millisecond):
	}

	disabled := NewIdleTimer(0)
	disabled.Start()
	if disabled.IsActive() {
		t.Error("zero duration timer should stay disabled")
	}
}
