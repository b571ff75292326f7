package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/hackgods/meeting-scheduler/internal/api"
	"github.com/hackgods/meeting-scheduler/internal/availability"
	"github.com/hackgods/meeting-scheduler/internal/booking"
	"github.com/hackgods/meeting-scheduler/internal/config"
	"github.com/hackgods/meeting-scheduler/internal/db"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	"github.com/hackgods/meeting-scheduler/internal/poll"
	redisclient "github.com/hackgods/meeting-scheduler/internal/redis"
)

var timezones = []string{
	"UTC",
	"Europe/London",
	"Europe/Berlin",
	"America/New_York",
	"America/Los_Angeles",
	"Asia/Kolkata",
	"Asia/Tokyo",
	"Australia/Sydney",
}

var eventKinds = []struct {
	title    string
	duration int
}{
	{"Intro Call", 15},
	{"Coffee Chat", 30},
	{"Project Review", 45},
	{"Deep Dive", 60},
	{"Office Hours", 30},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := config.StartupLogger(os.Stderr, "seed")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := cfg.Logger("seed")
	if cfg.Storage != config.StoragePostgres {
		logger.Fatal().Msg("seed needs STORAGE=postgres and POSTGRES_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.PostgresDSN, db.DefaultPoolOptions, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	integrationRepo := integration.NewPgRepository(pool)
	integrations := integration.NewService(integrationRepo, nil, logger)
	bookings := booking.NewService(
		booking.NewPgRepository(pool),
		redisclient.NewLocalLocker(cfg.LockTTL),
		integration.NewLinker(integrationRepo, nil),
		integrations,
		cfg,
		logger,
	)
	polls := poll.NewService(poll.NewPgRepository(pool), logger)
	tokens := api.NewTokens(cfg.JWTSecret)

	hosts := getInt("SEED_HOSTS", 20)
	printTokens := getInt("SEED_PRINT_TOKENS", 3)
	logger.Info().Int("hosts", hosts).Msg("seeding")

	for i := 0; i < hosts; i++ {
		h, err := seedHost(context.Background(), bookings, polls, i)
		if err != nil {
			logger.Fatal().Err(err).Int("index", i).Msg("seed host")
		}
		logger.Info().Str("username", h.Username).Str("timezone", h.Timezone).Msg("host seeded")

		if i < printTokens && cfg.JWTSecret != "" {
			token, err := tokens.Issue(api.Session{HostID: h.ID, Username: h.Username}, 30*24*time.Hour)
			if err != nil {
				logger.Fatal().Err(err).Msg("issue token")
			}
			fmt.Printf("%s\t%s\n", h.Username, token)
		}
	}

	logger.Info().Msg("seed complete")
}

func seedHost(ctx context.Context, bookings *booking.Service, polls *poll.Service, i int) (*booking.Host, error) {
	first := gofakeit.FirstName()
	last := gofakeit.LastName()
	h := &booking.Host{
		Username: fmt.Sprintf("%s%d", strings.ToLower(first), i),
		Name:     first + " " + last,
		Email:    gofakeit.Email(),
		Timezone: gofakeit.RandomString(timezones),
	}
	if err := bookings.CreateHost(ctx, h); err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}

	if _, err := bookings.UpdateAvailability(ctx, h.ID, randomWeek()); err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}

	n := gofakeit.Number(1, 3)
	for j := 0; j < n; j++ {
		kind := eventKinds[gofakeit.Number(0, len(eventKinds)-1)]
		_, err := bookings.CreateEvent(ctx, h.ID, booking.CreateEventInput{
			Title:           kind.title,
			Description:     gofakeit.Phrase(),
			DurationMinutes: kind.duration,
			LocationType:    integration.InPerson,
		})
		if err != nil {
			return nil, fmt.Errorf("create event: %w", err)
		}
	}

	if err := seedPoll(ctx, polls, h); err != nil {
		return nil, fmt.Errorf("seed poll: %w", err)
	}
	return h, nil
}

func randomWeek() booking.UpdateAvailabilityInput {
	gaps := []int{15, 30, 45, 60}
	days := make([]availability.DayRule, 0, len(availability.Weekdays))
	for _, d := range availability.Weekdays {
		rule := availability.DayRule{Day: d, Windows: []availability.Window{}}
		if d != availability.Saturday && d != availability.Sunday {
			start := availability.Clock(gofakeit.Number(7, 10) * 60)
			end := availability.Clock(gofakeit.Number(15, 19) * 60)
			rule.IsAvailable = true
			if gofakeit.Bool() {
				// lunch break
				rule.Windows = []availability.Window{{Start: start, End: 12 * 60}, {Start: 13 * 60, End: end}}
			} else {
				rule.Windows = []availability.Window{{Start: start, End: end}}
			}
		}
		days = append(days, rule)
	}
	return booking.UpdateAvailabilityInput{TimeGap: gaps[gofakeit.Number(0, len(gaps)-1)], Days: days}
}

func seedPoll(ctx context.Context, polls *poll.Service, h *booking.Host) error {
	base := time.Now().UTC().Truncate(time.Hour).Add(48 * time.Hour)
	slots := make([]string, 0, 4)
	for k := 0; k < 4; k++ {
		slots = append(slots, base.Add(time.Duration(k*26)*time.Hour).Format(time.RFC3339))
	}
	deadline := base.Add(-time.Hour)

	p, err := polls.Create(ctx, h.ID, poll.CreateInput{
		Title:              gofakeit.BuzzWord() + " sync",
		Description:        gofakeit.Phrase(),
		DurationMinutes:    30,
		Slots:              slots,
		AllowMultipleVotes: true,
		Deadline:           &deadline,
		AutoClose:          true,
	})
	if err != nil {
		return err
	}

	voters := gofakeit.Number(0, 8)
	for v := 0; v < voters; v++ {
		picks := []string{slots[gofakeit.Number(0, 1)], slots[gofakeit.Number(2, 3)]}
		if _, err := polls.SubmitVote(ctx, p.ID, poll.VoteInput{Participant: gofakeit.Name(), Slots: picks}); err != nil {
			return err
		}
	}
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
