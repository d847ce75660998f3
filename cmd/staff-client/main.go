package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Alexcyl0107/clinique/internal/alert"
	"github.com/Alexcyl0107/clinique/internal/api"
	"github.com/Alexcyl0107/clinique/internal/appointment"
	"github.com/Alexcyl0107/clinique/internal/config"
	"github.com/Alexcyl0107/clinique/internal/logging"
	"github.com/Alexcyl0107/clinique/internal/poller"
)

func main() {
	cfg := config.LoadClient()

	rootCmd := &cobra.Command{
		Use:   "staff-client",
		Short: "Terminal client for clinic staff: emergency alarm and acknowledgements",
	}
	rootCmd.PersistentFlags().String("server", cfg.ServerURL, "API base URL")
	rootCmd.PersistentFlags().String("token", cfg.Token, "staff bearer token")

	rootCmd.AddCommand(watchCmd(cfg))
	rootCmd.AddCommand(ackCmd())
	rootCmd.AddCommand(tokenCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func clientFrom(cmd *cobra.Command) *poller.StatsClient {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	return poller.NewStatsClient(server, token)
}

func watchCmd(cfg config.ClientConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the stats endpoint and sound the alarm while an emergency is unacknowledged",
		Long: "Type 'm' + Enter to mute the emergencies ringing now on this terminal only,\n" +
			"or 'a <id>' + Enter to acknowledge one for every staff member.",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			logger := logging.New(cfg.Env, "staff-client").Level(zerolog.WarnLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := &watcher{
				out:    cmd.OutOrStdout(),
				client: clientFrom(cmd),
				alarm:  alert.NewAlarm(),
			}
			go w.readCommands(ctx, cmd.InOrStdin())

			p := &poller.Poller{
				Interval: interval,
				Fetch:    w.client.FetchStats,
				OnUpdate: w.render,
				OnError:  func(err error) { w.printf("poll failed: %v\n", err) },
				Logger:   logger,
			}

			err := p.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Duration("interval", cfg.PollInterval, "poll interval")
	return cmd
}

type watcher struct {
	mu     sync.Mutex
	out    io.Writer
	client *poller.StatsClient
	alarm  *alert.Alarm
}

func (w *watcher) printf(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, format, args...)
}

func (w *watcher) render(st alert.Stats) {
	sounding := w.alarm.Observe(st)

	line := fmt.Sprintf("[%s] total=%d awaiting_doctor=%d pending_admin=%d scheduled=%d emergencies=%d unacknowledged=%d",
		st.ComputedAt.Local().Format("15:04:05"), st.TotalAppointments, st.AwaitingDoctor,
		st.PendingAppointments, st.ConfirmedAppointments, st.EmergencyCount, st.UnacknowledgedEmergencies)

	if sounding {
		// \a rings the terminal bell
		w.printf("\a%s\n  !!! URGENCE: %s  (m = mute, a <id> = acknowledge)\n", line, strings.Join(w.alarm.Unmuted(), ", "))
		return
	}
	if st.Ringing {
		w.printf("%s  (alarm muted locally)\n", line)
		return
	}
	w.printf("%s\n", line)
}

func (w *watcher) readCommands(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "m", "mute":
			w.alarm.Mute()
			w.printf("alarm muted on this terminal; other staff still hear it\n")
		case "a", "ack":
			if len(fields) < 2 {
				w.printf("usage: a <appointment-id>\n")
				continue
			}
			ackCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			appt, err := w.client.Acknowledge(ackCtx, fields[1])
			cancel()
			if err != nil {
				w.printf("acknowledge %s failed: %v\n", fields[1], err)
				continue
			}
			w.printf("acknowledged %s (status %s)\n", appt.ID, appt.Status)
		default:
			w.printf("unknown command %q\n", fields[0])
		}
	}
}

func ackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <appointment-id>",
		Short: "Acknowledge an emergency for all staff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			appt, err := clientFrom(cmd).Acknowledge(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "acknowledged %s (status %s)\n", appt.ID, appt.Status)
			return nil
		},
	}
}

func tokenCmd(cfg config.ClientConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed actor token (development)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawRole, _ := cmd.Flags().GetString("role")
			id, _ := cmd.Flags().GetString("id")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			secret, _ := cmd.Flags().GetString("secret")

			role, ok := appointment.ParseRole(rawRole)
			if !ok {
				return fmt.Errorf("unknown role %q", rawRole)
			}
			if secret == "" {
				return errors.New("no signing secret: set JWT_SECRET or --secret")
			}

			tok, err := api.IssueToken([]byte(secret), appointment.Actor{ID: id, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("role", string(appointment.RoleDoctor), "ADMIN, DOCTOR, PHARMACIST or PATIENT")
	cmd.Flags().String("id", "staff-1", "actor id placed in the token subject")
	cmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
	cmd.Flags().String("secret", cfg.JWTSecret, "HMAC signing secret")
	return cmd
}
