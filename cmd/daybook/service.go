package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/daybook/pkg/app"
)

const (
	serviceName     = "daybook"
	serviceStopWait = 30 * time.Second
)

// program adapts app.Run to the service manager's Start/Stop callbacks.
type program struct {
	params app.RunParams

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- app.Run(ctx, p.params)
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case err := <-done:
		return err
	case <-time.After(serviceStopWait):
		return errors.New("service: daemon did not stop in time")
	}
}

// serviceArgs are the arguments the service manager starts the binary with.
func serviceArgs(cc *cliContext) ([]string, error) {
	args := []string{"service", "run"}
	if cc.configPath != "" {
		abs, err := filepath.Abs(cc.configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if cc.dataDir != "" {
		abs, err := filepath.Abs(cc.dataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", abs)
	}
	return args, nil
}

func newService(cc *cliContext) (service.Service, error) {
	args, err := serviceArgs(cc)
	if err != nil {
		return nil, err
	}
	return service.New(&program{params: runParams(cc)}, &service.Config{
		Name:        serviceName,
		DisplayName: "Daybook",
		Description: "Personal productivity daemon: reminders, home-screen widgets and backups.",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": true},
	})
}

func serviceCmd(cc *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control daybook as a background service",
	}

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the %s service", capitalize(action), serviceName),
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService(cc)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the service state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cc)
			if err != nil {
				return err
			}
			st, err := s.Status()
			if err != nil && !errors.Is(err, service.ErrNotInstalled) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeStatus(st, err))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Entry point used by the service manager",
		Hidden: true,
		RunE: func(*cobra.Command, []string) error {
			s, err := newService(cc)
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	return cmd
}

func describeStatus(st service.Status, err error) string {
	if errors.Is(err, service.ErrNotInstalled) {
		return "not installed"
	}
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
