package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zed-io/fineract-sub004/app"
	"github.com/zed-io/fineract-sub004/client"
	"github.com/zed-io/fineract-sub004/custom_errors"
	"github.com/zed-io/fineract-sub004/types"
	"github.com/zed-io/fineract-sub004/types/config"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	workers := []types.Worker{
		types.NewFuncWorker("send_sms", sendSms),
		types.NewFuncWorker("report", generateReport),
		types.NewFuncWorker("custom", nightlyBackup, "NightlyBackupJob"),
	}
	if err := cfg.RegisterWorkers(workers); err != nil {
		logger.Fatal("failed to register workers", zap.Error(err))
	}

	container, err := app.NewContainer(cfg, app.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}

	ctx := context.Background()
	if err := container.InitSchema(ctx); err != nil {
		logger.Fatal("failed to initialize schema", zap.Error(err))
	}

	jobManager := container.JobManager
	if err := jobManager.Start(ctx); err != nil {
		logger.Fatal("failed to start job manager", zap.Error(err))
	}

	if err := seedJobs(ctx, jobManager, logger); err != nil {
		logger.Fatal("failed to seed jobs", zap.Error(err))
	}

	jobManager.GracefulExit()
}

// sampleJobs have fixed ids so every node and every restart schedules the
// same rows.
func sampleJobs() []*types.Job {
	return []*types.Job{
		{ID: "daily-sales-report", Name: "DailySalesReportJob", JobType: "report", CronExpression: "0 0 * * *", Parameters: map[string]any{"kind": "daily-sales"}},
		{ID: "monthly-profit-report", Name: "MonthlyProfitReportJob", JobType: "report", CronExpression: "0 0 1 * *", Parameters: map[string]any{"month": "2025-05"}},
		{ID: "nightly-backup", Name: "NightlyBackupJob", JobType: "custom", CronExpression: "0 2 * * *", Priority: 10, Parameters: map[string]any{"mode": "full"}},
		{ID: "welcome-sms", Name: "WelcomeSms", JobType: "send_sms", Parameters: map[string]any{"to": "phone-1", "message": "welcome"}},
	}
}

// seedJobs schedules sampleJobs, skipping the ones already stored.
func seedJobs(ctx context.Context, jobManager *client.JobManager, logger *zap.Logger) error {
	for _, job := range sampleJobs() {
		_, err := jobManager.ScheduleJob(ctx, job)
		switch {
		case err == nil:
			logger.Info("seeded job", zap.String("job_id", job.ID))
		case errors.Is(err, custom_errors.ErrConflict):
			logger.Debug("job already seeded", zap.String("job_id", job.ID))
		default:
			return fmt.Errorf("seed job %s: %w", job.ID, err)
		}
	}
	return nil
}

func newLogger() (*zap.Logger, error) {
	if strings.EqualFold(os.Getenv("SCHEDULER_DEBUG"), "true") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func sendSms(ctx context.Context, job *types.Job, params map[string]any) (map[string]any, error) {
	to, _ := params["to"].(string)
	message, _ := params["message"].(string)
	if to == "" {
		return nil, fmt.Errorf("job %s: recipient is required", job.ID)
	}
	fmt.Printf("Sending SMS to %s:\n%s\n", to, message)
	return map[string]any{"to": to}, nil
}

func generateReport(ctx context.Context, job *types.Job, params map[string]any) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return map[string]any{"report": job.Name, "params": len(params)}, nil
}

func nightlyBackup(ctx context.Context, job *types.Job, params map[string]any) (map[string]any, error) {
	mode, _ := params["mode"].(string)
	return map[string]any{"mode": mode}, nil
}
