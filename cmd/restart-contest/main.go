// Command restart-contest clones a contest's problem set into a new contest
// that starts now and runs for the same length as the original.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/veriloglab/judge-backend/internal/config"
	"github.com/veriloglab/judge-backend/internal/database"
	"github.com/veriloglab/judge-backend/internal/logger"
	"github.com/veriloglab/judge-backend/internal/model"
	"github.com/veriloglab/judge-backend/internal/repository"
	"github.com/veriloglab/judge-backend/internal/service"
)

func main() {
	var (
		contestArg string
		adminArg   string
		title      string
		delay      time.Duration
	)
	flag.StringVar(&contestArg, "contest", "", "ID of the contest to restart (required)")
	flag.StringVar(&adminArg, "admin", "", "Admin user recorded as creator (defaults to the original creator)")
	flag.StringVar(&title, "title", "", "Title of the new contest (defaults to the original title + \" (restart)\")")
	flag.DurationVar(&delay, "in", 0, "Start the new contest this long from now")
	flag.Parse()

	contestID, err := uuid.Parse(contestArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "-contest must be a contest UUID")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	contests := service.NewContestService(
		repository.NewContestRepository(pool),
		repository.NewParticipantRepository(pool),
		repository.NewProblemRepository(pool),
		repository.NewUserRepository(pool),
		log,
	)

	original, err := contests.Get(ctx, contestID)
	if err != nil {
		log.Fatal().Err(err).Str("contest_id", contestID.String()).Msg("Failed to load contest")
	}

	var adminID uuid.UUID
	switch {
	case adminArg != "":
		if adminID, err = uuid.Parse(adminArg); err != nil {
			log.Fatal().Err(err).Msg("Invalid -admin")
		}
	case original.CreatedBy != nil:
		adminID = *original.CreatedBy
	default:
		log.Fatal().Msg("Original contest has no creator; pass -admin")
	}

	if title == "" {
		title = original.Title + " (restart)"
	}
	start := time.Now().Add(delay).Truncate(time.Second)

	req := model.CreateContestRequest{
		Title:       title,
		Description: original.Description,
		Problems:    original.Problems,
		StartTime:   start,
		EndTime:     start.Add(original.EndTime.Sub(original.StartTime)),
	}

	restarted, err := contests.Create(ctx, adminID, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create contest")
	}

	fmt.Printf("Restarted %s as %s\n", original.ID, restarted.ID)
	fmt.Printf("  title:    %s\n", restarted.Title)
	fmt.Printf("  problems: %d\n", len(restarted.Problems))
	fmt.Printf("  window:   %s to %s (%s)\n",
		restarted.StartTime.Format(time.RFC3339), restarted.EndTime.Format(time.RFC3339), restarted.Status)
}
