package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"psychout-service/internal/config"
	"psychout-service/internal/domain"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML fixture format consumed by the seed subcommand.
type seedFile struct {
	Topics []struct {
		Name      string `yaml:"name"`
		Questions []struct {
			Question string `yaml:"question"`
			Answer   string `yaml:"answer"`
		} `yaml:"questions"`
	} `yaml:"topics"`
}

// NewSeedCmd loads topics and questions from a YAML fixture into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var fixturePath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load topics and questions from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, fixturePath)
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "config/topics.yaml", "path to the topics fixture")
	return cmd
}

func runSeed(ctx context.Context, cfg config.Config, fixturePath string) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	data, err := os.ReadFile(fixturePath)
	if err != nil {
		return err
	}
	var fixture seedFile
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	for _, t := range fixture.Topics {
		topic := domain.Topic{Name: t.Name}
		if _, err := db.NewInsert().Model(&topic).
			On("CONFLICT (name) DO UPDATE SET name = EXCLUDED.name").
			Returning("*").
			Exec(ctx); err != nil {
			return fmt.Errorf("seed topic %q: %w", t.Name, err)
		}
		for _, q := range t.Questions {
			question := domain.Question{
				TopicID:      topic.ID,
				QuestionText: q.Question,
				AnswerText:   q.Answer,
			}
			exists, err := db.NewSelect().Model((*domain.Question)(nil)).
				Where("topic_id = ?", topic.ID).
				Where("question_text = ?", q.Question).
				Exists(ctx)
			if err != nil {
				return fmt.Errorf("check question: %w", err)
			}
			if exists {
				continue
			}
			if _, err := db.NewInsert().Model(&question).Exec(ctx); err != nil {
				return fmt.Errorf("seed question: %w", err)
			}
		}
		log.Printf("seeded topic %q with %d questions", t.Name, len(t.Questions))
	}
	return nil
}
