package api

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bwmarrin/discordgo"

	"github.com/felixgeelhaar/robotflow/domain/config"
	"github.com/felixgeelhaar/robotflow/domain/ledger"
	"github.com/felixgeelhaar/robotflow/domain/policy"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/domain/sequence"
	"github.com/felixgeelhaar/robotflow/infrastructure/distributed/lock"
	"github.com/felixgeelhaar/robotflow/infrastructure/link"
	"github.com/felixgeelhaar/robotflow/infrastructure/llm"
	"github.com/felixgeelhaar/robotflow/infrastructure/notification"
	"github.com/felixgeelhaar/robotflow/infrastructure/resilience"
	"github.com/felixgeelhaar/robotflow/infrastructure/review"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/blob"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/filesystem"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/redis"
)

// openLink selects the simulator or the robot socket. A zero step delay
// keeps the simulator's default pacing.
func (rt *Runtime) openLink(ec config.ExecutionConfig) (robot.Link, error) {
	switch ec.Mode {
	case config.ModeSimulation, "":
		delay := ec.StepDelay.Duration()
		if delay == 0 {
			delay = -1
		}
		return link.NewSimulator(delay), nil
	case config.ModeSocket:
		executor := resilience.NewExecutor[string](
			resilience.FromConfig(resilience.DefaultExecutorConfig(), ec.Resilience))
		s := link.NewSocket(ec.Host, ec.Port, executor)
		rt.onClose("robot socket", closeFunc(s))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", ec.Mode)
	}
}

// openArchive returns nil when no archive backend is configured; the
// actions file is written either way.
func (rt *Runtime) openArchive(ctx context.Context, ac config.ArchiveConfig) (sequence.Archive, error) {
	var client blob.Client
	switch ac.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendFilesystem:
		return filesystem.NewArchive(ac.Dir)
	case config.BackendS3:
		c, err := blob.NewS3Client(ctx, blob.S3Config{Region: ac.Region, Endpoint: ac.Endpoint})
		if err != nil {
			return nil, err
		}
		client = c
	case config.BackendGCS:
		c, err := blob.NewGCSClient(ctx, blob.GCSConfig{Endpoint: ac.Endpoint})
		if err != nil {
			return nil, err
		}
		rt.onClose("gcs", closeFunc(c))
		client = c
	case config.BackendAzure:
		c, err := blob.NewAzureClient(blob.AzureConfig{
			AccountName:      ac.Account,
			ConnectionString: os.Getenv("AZURE_STORAGE_CONNECTION_STRING"),
		})
		if err != nil {
			return nil, err
		}
		client = c
	default:
		return nil, fmt.Errorf("unknown backend %q", ac.Backend)
	}
	return blob.NewArchive(blob.Config{Client: client, Bucket: ac.Bucket, Prefix: ac.Prefix})
}

type models struct {
	extractor  llm.Extractor
	classifier llm.Classifier
	answerer   llm.Answerer
}

// openModels falls back to structured JSON commands and keyword routing
// when no provider is configured.
func openModels(lc config.LLMConfig) (models, error) {
	if !lc.Enabled() {
		return models{extractor: llm.StructuredExtractor{}}, nil
	}
	client, err := llm.NewClientFromConfig(lc)
	if err != nil {
		return models{}, err
	}
	return models{
		extractor:  llm.NewIntentExtractor(client),
		classifier: llm.NewIntentClassifier(client),
		answerer:   llm.NewQuestionAnswerer(client),
	}, nil
}

func (rt *Runtime) openReviewer(cfg config.AppConfig, in io.Reader, out io.Writer) (policy.Reviewer, error) {
	switch cfg.Workflow.ReviewMode {
	case config.ReviewAuto:
		return policy.NewAutoReviewer("auto"), nil
	case config.ReviewTelegram:
		t, err := review.NewTelegramFromToken(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			return nil, err
		}
		rt.onClose("telegram", closeFunc(t))
		return t, nil
	case config.ReviewTerminal, "":
		if in == nil || out == nil {
			return review.NewStdioTerminal(), nil
		}
		return review.NewTerminal(in, out), nil
	default:
		return nil, fmt.Errorf("unknown review mode %q", cfg.Workflow.ReviewMode)
	}
}

func openPublisher(nc config.NotifyConfig) (ledger.EventPublisher, error) {
	if nc.DiscordWebhook == "" {
		return ledger.NoOpPublisher{}, nil
	}
	return notification.NewDiscordFromURL(nc.DiscordWebhook,
		notification.WithExecutor(resilience.NewExecutor[*discordgo.Message](resilience.DefaultExecutorConfig())))
}

// openLock selects the cell execution lock. A nil lock executes without
// locking.
func (rt *Runtime) openLock(lc config.LockConfig) (lock.Lock, error) {
	switch lc.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return lock.NewMemoryLock(), nil
	case config.BackendRedis:
		l, err := redis.NewLock(redis.DefaultConfig(), redis.WithAddress(lc.Addr))
		if err != nil {
			return nil, err
		}
		rt.onClose("redis lock", closeFunc(l))
		return l, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", lc.Backend)
	}
}
