// Package audio plays prompt recordings to callers over AudioSocket.
package audio

/*
AudioSocket playback rules:
- Always send audiosocket.DefaultSlinChunkSize (320 byte) frames.
- 320 bytes = 8000Hz × 20ms × 2 bytes. Smaller frames play in slow motion.
- Frames are paced at 20ms, one per tick.
*/

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/rs/zerolog"
)

const frameInterval = 20 * time.Millisecond

var errNotWAV = errors.New("not a valid WAV file")

// Player holds prompt recordings in memory, keyed by file name.
type Player struct {
	audioCache map[string][]byte
	mutex      sync.RWMutex
	audioDir   string
	log        zerolog.Logger
}

// NewPlayer preloads every WAV file in audioDir. Files that fail to parse
// are skipped with a warning.
func NewPlayer(audioDir string, log zerolog.Logger) (*Player, error) {
	player := &Player{
		audioCache: make(map[string][]byte),
		audioDir:   audioDir,
		log:        log.With().Str("component", "audio").Logger(),
	}

	if err := player.preloadAudioFiles(); err != nil {
		return nil, fmt.Errorf("failed to preload audio files: %w", err)
	}
	return player, nil
}

func (p *Player) preloadAudioFiles() error {
	files, err := filepath.Glob(filepath.Join(p.audioDir, "*.wav"))
	if err != nil {
		return fmt.Errorf("failed to glob audio files: %w", err)
	}

	for _, file := range files {
		filename := filepath.Base(file)
		audioData, err := loadWAVFile(file)
		if err != nil {
			p.log.Warn().Err(err).Str("file", filename).Msg("failed to load audio file")
			continue
		}

		p.mutex.Lock()
		p.audioCache[filename] = audioData
		p.mutex.Unlock()

		p.log.Debug().Str("file", filename).Int("bytes", len(audioData)).Msg("loaded audio file")
	}
	return nil
}

// loadWAVFile returns the PCM payload of the file's data chunk.
func loadWAVFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseWAV(raw)
}

func parseWAV(raw []byte) ([]byte, error) {
	if len(raw) < 12 || !bytes.Equal(raw[0:4], []byte("RIFF")) || !bytes.Equal(raw[8:12], []byte("WAVE")) {
		return nil, errNotWAV
	}

	// Walk the chunk list; fmt, LIST and friends may precede data.
	for off := 12; off+8 <= len(raw); {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if id == "data" {
			end := min(body+size, len(raw))
			return raw[body:end], nil
		}
		off = body + size + size%2
	}
	return nil, fmt.Errorf("%w: no data chunk", errNotWAV)
}

// GetAudio returns cached audio data for a given filename.
func (p *Player) GetAudio(filename string) ([]byte, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	audioData, exists := p.audioCache[filename]
	return audioData, exists
}

// Files lists the loaded recordings.
func (p *Player) Files() []string {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	names := make([]string, 0, len(p.audioCache))
	for name := range p.audioCache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PlayAudio sends a recording to the caller and blocks until it is done.
func (p *Player) PlayAudio(w io.Writer, filename string) error {
	_, err := p.PlayAudioWithStop(w, filename, nil)
	return err
}

// PlayAudioWithStop sends a recording frame by frame and returns early when
// stop is closed. It reports whether the recording played to the end.
func (p *Player) PlayAudioWithStop(w io.Writer, filename string, stop <-chan struct{}) (bool, error) {
	audioData, exists := p.GetAudio(filename)
	if !exists {
		return false, fmt.Errorf("audio file not found: %s", filename)
	}

	chunkSize := audiosocket.DefaultSlinChunkSize
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for i := 0; i < len(audioData); i += chunkSize {
		select {
		case <-stop:
			p.log.Debug().Str("file", filename).Int("sent_bytes", i).Msg("playback stopped")
			return false, nil
		default:
		}

		end := min(i+chunkSize, len(audioData))
		if _, err := w.Write(audiosocket.SlinMessage(audioData[i:end])); err != nil {
			return false, fmt.Errorf("failed to send audio: %w", err)
		}

		if end < len(audioData) {
			select {
			case <-ticker.C:
			case <-stop:
				p.log.Debug().Str("file", filename).Int("sent_bytes", end).Msg("playback stopped")
				return false, nil
			}
		}
	}

	p.log.Debug().Str("file", filename).Int("bytes", len(audioData)).Msg("played audio file")
	return true, nil
}
