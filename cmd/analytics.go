package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okulai/okulai/internal/app"
	"github.com/okulai/okulai/internal/config"
	"github.com/okulai/okulai/internal/log"
)

var analyticsStudentID string

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Öğrenme istatistiklerini göster",
	RunE:  runAnalytics,
}

func init() {
	analyticsCmd.Flags().StringVar(&analyticsStudentID, "student", "", "öğrenci kimliği (zorunlu)")
	_ = analyticsCmd.MarkFlagRequired("student")
	rootCmd.AddCommand(analyticsCmd)
}

func runAnalytics(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := log.New(log.Config{Level: slog.LevelWarn})

	ctx := cmd.Context()
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	stats, err := a.Memory.Analytics(ctx, analyticsStudentID)
	if err != nil {
		return fmt.Errorf("loading analytics: %w", err)
	}

	fmt.Printf("Öğrenci: %s\n", stats.StudentID)
	fmt.Printf("Toplam mesaj: %d\n", stats.TurnCount)
	fmt.Printf("Oturum sayısı: %d\n", stats.SessionCount)
	if len(stats.WeakTopics) > 0 {
		fmt.Printf("Zayıf konular: %s\n", strings.Join(stats.WeakTopics, ", "))
	}
	if !stats.LastActiveAt.IsZero() {
		fmt.Printf("Son aktivite: %s\n", stats.LastActiveAt.Format("2006-01-02 15:04"))
	}
	return nil
}
