package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"hackercast/internal/config"
	"hackercast/internal/fileutil"
	"hackercast/internal/logging"
	"hackercast/internal/queue"
	"hackercast/internal/services"
	"hackercast/internal/stage"
	"hackercast/internal/textutil"
)

// SpeechSynthesizer renders script text to MP3 bytes.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Audio renders an item's script to an MP3 under the audio directory.
// Files are keyed by batch and item, so a repeated attempt reuses the
// rendering a prior try already wrote.
type Audio struct {
	cfg    *config.Config
	client SpeechSynthesizer
	logger *slog.Logger
}

// NewAudio constructs the audio stage handler.
func NewAudio(cfg *config.Config, client SpeechSynthesizer, logger *slog.Logger) *Audio {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Audio{
		cfg:    cfg,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "stage-audio")),
	}
}

func (a *Audio) Prepare(ctx context.Context, item *queue.Item) error {
	if strings.TrimSpace(item.ScriptText) == "" {
		return services.Wrap(services.ErrPermanent, "audio", "validate item",
			"Item carries no script text; the script stage output is missing", nil)
	}
	return nil
}

func (a *Audio) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, a.logger)
	path := a.episodePath(item)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		item.AudioPath = path
		logger.Info("audio already rendered", logging.String("audio_path", path))
		return nil
	}

	audio, err := a.client.Synthesize(ctx, item.ScriptText)
	if err != nil {
		return err
	}
	if len(audio) == 0 {
		return services.Wrap(services.ErrPermanent, "audio", "synthesize speech",
			"Synthesis returned no audio data", nil)
	}
	if err := fileutil.WriteFileAtomic(path, audio, 0o644); err != nil {
		return services.Wrap(services.ErrInternal, "audio", "write audio file",
			"Failed to write the rendered audio", err)
	}
	item.AudioPath = path
	logger.Info("audio rendered",
		logging.String("audio_path", path),
		logging.Int("audio_bytes", len(audio)),
	)
	return nil
}

func (a *Audio) HealthCheck(ctx context.Context) stage.Health {
	const name = "audio"
	if a.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(a.cfg.Paths.AudioDir) == "" {
		return stage.Unhealthy(name, "audio directory not configured")
	}
	if a.client == nil {
		return stage.Unhealthy(name, "tts client unavailable")
	}
	return stage.Healthy(name)
}

func (a *Audio) episodePath(item *queue.Item) string {
	name := fmt.Sprintf("%d-%s.mp3", item.ItemID, episodeSlug(item.Title))
	return filepath.Join(a.cfg.Paths.AudioDir, item.BatchID, name)
}

// episodeSlug derives a filesystem-safe fragment from the story title so
// audio files are recognizable on disk. SanitizeToken output is ASCII, so
// the byte cap cannot split a rune.
func episodeSlug(title string) string {
	slug := textutil.SanitizeToken(title)
	if len(slug) > 48 {
		slug = strings.Trim(slug[:48], "_-")
	}
	return slug
}
