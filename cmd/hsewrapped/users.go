package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"HSEWrapped/internal/config"
	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/infrastructure/usagelog"
	"HSEWrapped/internal/logging"
)

var (
	usersFilter     domain.UserFilter
	usersBroadcasts bool
)

type broadcastHistory interface {
	Broadcasts(ctx context.Context) ([]domain.BroadcastRecord, error)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List known users, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		logger := logging.New(cfg.Logging.Level)
		ctx := cmd.Context()

		store, err := usagelog.Open(ctx, cfg.Usage, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		users, err := store.Users(ctx, usersFilter, time.Now())
		if err != nil {
			return err
		}
		writeUsers(cmd.OutOrStdout(), users)

		if !usersBroadcasts {
			return nil
		}
		history, ok := store.(broadcastHistory)
		if !ok {
			return fmt.Errorf("usage driver %q keeps no broadcast history", cfg.Usage.Driver)
		}
		records, err := history.Broadcasts(ctx)
		if err != nil {
			return err
		}
		writeBroadcasts(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	flags := usersCmd.Flags()
	flags.IntVar(&usersFilter.ActiveDays, "active-days", 0, "only users seen within this many days")
	flags.BoolVar(&usersFilter.HasSuccessfulRequests, "successful", false, "only users with a delivered report")
	flags.IntVar(&usersFilter.MinRequests, "min-requests", 0, "only users with at least this many requests")
	flags.BoolVar(&usersBroadcasts, "broadcasts", false, "also print the broadcast history")
}

func writeUsers(w io.Writer, users []domain.UserRecord) {
	sorted := append([]domain.UserRecord(nil), users...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FirstSeen.After(sorted[j].FirstSeen)
	})

	fmt.Fprint(w, "👥 ПОЛЬЗОВАТЕЛИ ПО НОВИЗНЕ (новые сначала):\n\n")
	for i, u := range sorted {
		name := u.FirstName
		if name == "" {
			name = u.Username
		}
		if name == "" {
			name = "Без имени"
		}
		handle := ""
		if u.Username != "" {
			handle = " @" + u.Username
		}

		fmt.Fprintf(w, "%d. %s%s\n", i+1, name, handle)
		fmt.Fprintf(w, "   📅 Регистрация: %s\n", u.FirstSeen.Local().Format("02.01.2006, 15:04:05"))
		fmt.Fprintf(w, "   📊 Запросов: %d, Успешных: %d\n\n", u.PortfolioRequests, u.SuccessfulRequests)
	}
	fmt.Fprintf(w, "\n📈 ВСЕГО ПОЛЬЗОВАТЕЛЕЙ: %d\n", len(sorted))
}

func writeBroadcasts(w io.Writer, records []domain.BroadcastRecord) {
	fmt.Fprint(w, "\n📢 РАССЫЛКИ:\n")
	for _, r := range records {
		fmt.Fprintf(w, "%s  %-12s %d/%d (%.1f%%)\n",
			r.Timestamp.Local().Format("02.01.2006 15:04"), r.Type, r.SentCount, r.TotalCount, r.SuccessRate)
	}
}
