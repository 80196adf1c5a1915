//go:build windows

// Package main provides Windows service support for the refinery service.
//
// service_windows.go implements the Windows Service interface using
// github.com/kardianos/service, so the refinement server can run as a
// background service with proper Start/Stop handling.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
)

// Program implements service.Interface for Windows Service integration.
// It wraps the main application logic and provides Start/Stop lifecycle
// methods.
type Program struct {
	ctx    context.Context
	cancel context.CancelFunc
	exit   chan struct{}
}

// Start is called when the service is started.
// It begins the service run loop in a goroutine.
func (p *Program) Start(s service.Service) error {
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.exit = make(chan struct{})

	go p.run()

	return nil
}

// Stop is called when the service is stopped.
// It signals the application to shut down gracefully.
func (p *Program) Stop(s service.Service) error {
	p.cancel()

	select {
	case <-p.exit:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for service to stop")
	}

	return nil
}

// run contains the main service logic, running until Stop is signaled.
func (p *Program) run() {
	defer close(p.exit)

	// The foreground entry point drives the same lifecycle: config, model
	// host, HTTP server, shutdown manager. The service wrapper only maps
	// Windows service control onto that lifecycle.
	done := make(chan struct{})
	go func() {
		defer close(done)
		run()
	}()

	select {
	case <-p.ctx.Done():
	case <-done:
	}
}

// ServiceConfiguration returns the Windows service definition.
func ServiceConfiguration() *service.Config {
	return &service.Config{
		Name:        "Refinery",
		DisplayName: "Refinery Image Service",
		Description: "GPU-backed image refinement service with HTTP API",
		Option: service.KeyValue{
			"StartType": "automatic",
		},
	}
}

// RunAsService runs the application as a Windows service.
// Returns true if running as a service, false if running interactively.
func RunAsService() (bool, error) {
	prg := &Program{}
	svcConfig := ServiceConfiguration()

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return false, fmt.Errorf("failed to create service: %w", err)
	}

	if service.Interactive() {
		return false, nil
	}

	err = s.Run()
	if err != nil {
		return true, fmt.Errorf("service run failed: %w", err)
	}

	return true, nil
}

// InstallService installs the application as a Windows service.
func InstallService() error {
	s, err := service.New(&Program{}, ServiceConfiguration())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if err := s.Install(); err != nil {
		return fmt.Errorf("failed to install service: %w", err)
	}

	fmt.Println("Service installed successfully")
	return nil
}

// UninstallService removes the Windows service.
func UninstallService() error {
	s, err := service.New(&Program{}, ServiceConfiguration())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if err := s.Uninstall(); err != nil {
		return fmt.Errorf("failed to uninstall service: %w", err)
	}

	fmt.Println("Service uninstalled successfully")
	return nil
}

// StartService starts the Windows service.
func StartService() error {
	s, err := service.New(&Program{}, ServiceConfiguration())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	fmt.Println("Service started successfully")
	return nil
}

// StopService stops the Windows service.
func StopService() error {
	s, err := service.New(&Program{}, ServiceConfiguration())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if err := s.Stop(); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}

	fmt.Println("Service stopped successfully")
	return nil
}

// RestartService stops and then starts the Windows service.
func RestartService() error {
	s, err := service.New(&Program{}, ServiceConfiguration())
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	if err := s.Restart(); err != nil {
		return fmt.Errorf("failed to restart service: %w", err)
	}

	fmt.Println("Service restarted successfully")
	return nil
}

// ServiceStatus returns the current status of the Windows service.
func ServiceStatus() (service.Status, error) {
	s, err := service.New(&Program{}, ServiceConfiguration())
	if err != nil {
		return service.StatusUnknown, fmt.Errorf("failed to create service: %w", err)
	}

	status, err := s.Status()
	if err != nil {
		return service.StatusUnknown, fmt.Errorf("failed to get service status: %w", err)
	}

	return status, nil
}

// PrintServiceUsage prints the help/usage information for service commands.
func PrintServiceUsage() {
	fmt.Println("Refinery Service Management")
	fmt.Println()
	fmt.Println("Usage: refinery.exe <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  install    Install the application as a Windows service")
	fmt.Println("  uninstall  Remove the Windows service (alias: remove)")
	fmt.Println("  start      Start the Windows service")
	fmt.Println("  stop       Stop the Windows service")
	fmt.Println("  restart    Restart the Windows service (stop then start)")
	fmt.Println("  status     Show the current service status")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Run without arguments to start the server in foreground mode.")
}

// HandleServiceCommand handles service-related command-line arguments.
// Returns true if a service command was handled, false otherwise.
func HandleServiceCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}

	var err error
	switch args[1] {
	case "install":
		err = InstallService()
	case "uninstall", "remove":
		err = UninstallService()
	case "start":
		err = StartService()
	case "stop":
		err = StopService()
	case "restart":
		err = RestartService()
	case "status":
		status, statusErr := ServiceStatus()
		if statusErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", statusErr)
			os.Exit(1)
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Service is running")
		case service.StatusStopped:
			fmt.Println("Service is stopped")
		default:
			fmt.Println("Service status unknown")
		}
		return true
	case "help", "-h", "--help", "-help":
		PrintServiceUsage()
		return true
	default:
		return false
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return true
}
