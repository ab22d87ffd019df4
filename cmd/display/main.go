package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-clinic-queue/internal/client"
	"backend-clinic-queue/internal/config"
	"backend-clinic-queue/internal/helper"
	"backend-clinic-queue/internal/models"
	"backend-clinic-queue/internal/notify"
	"backend-clinic-queue/internal/queue"
)

// Waiting-room display terminal. Mirrors today's queue over the push channel
// (polling when the channel is unavailable), renders the board and reads out
// call announcements.
func main() {
	config.LoadEnv()
	log := config.NewLogger()

	sess := client.Session{
		Role:     config.GetEnv("DISPLAY_ROLE", models.RoleAdmin),
		UserID:   config.GetEnv("DISPLAY_USER_ID", "display"),
		DoctorID: config.GetEnv("DISPLAY_DOCTOR_ID", ""),
		Token:    os.Getenv("DISPLAY_TOKEN"),
	}

	baseURL := config.GetEnv("API_BASE_URL", "http://127.0.0.1:8080")
	wsURL := config.GetEnv("WS_URL", "ws://127.0.0.1:8080/ws/queue")

	mgr := notify.NewManager(notify.ConsoleSound{}, notify.NopDesktop{}, log)
	defer mgr.Close()

	sync := client.NewSynchronizer(
		sess,
		client.NewHTTPStore(baseURL, sess.Token),
		mgr,
		&client.WSDialer{URL: wsURL, Token: sess.Token},
		log,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sync.Run(ctx); err != nil {
			log.Error().Err(err).Msg("synchronizer stopped")
		}
	}()

	announced := make(map[string]bool)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			render(sync.Snapshot())
			announce(mgr, announced)
		}
	}
}

func render(entries []models.QueueEntry) {
	now := time.Now()

	fmt.Printf("\n==== TODAY'S QUEUE %s ====\n", now.Format("15:04"))
	fmt.Printf("%-5s %-20s %-20s %-12s %-10s %s\n",
		"NO", "PATIENT", "DOCTOR", "STATUS", "PRIORITY", "ETA")

	for _, e := range entries {
		num := "-"
		if e.QueueNumber > 0 {
			num = fmt.Sprintf("%d", e.QueueNumber)
		}
		fmt.Printf("%-5s %-20s %-20s %-12s %-10s %s\n",
			num,
			helper.MaskName(e.PatientName),
			e.DoctorName,
			e.QueueStatus,
			e.PriorityLevel,
			queue.ETA(e.EstimatedStartAt, now),
		)
	}
}

// announce plays the overhead call sequence once per call notification.
func announce(mgr *notify.Manager, announced map[string]bool) {
	for _, n := range mgr.Active() {
		if n.QueueNumber == 0 || announced[n.ID] {
			continue
		}
		announced[n.ID] = true

		for _, segment := range notify.BuildAnnouncement(n.QueueNumber, "") {
			fmt.Printf("[audio] %s\n", segment)
		}
	}
}
