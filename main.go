package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"chatshare/pkg/log"
	"chatshare/pkg/rtc"
	"chatshare/pkg/settings"
	"chatshare/pkg/share"
	"chatshare/pkg/signal"
)

// LocalSignalServer is the URL for a broker running on this machine
const LocalSignalServer = "ws://localhost:8080/ws"

// Config holds runtime configuration
type Config struct {
	ServeMode bool
	Port      int
	SignalURL string
	Room      string
	Name      string
	Audio     bool
	FPS       int
	Verbose   bool
}

func parseFlags(saved settings.UserSettings) Config {
	config := Config{}
	var localMode bool

	pflag.BoolVarP(&config.ServeMode, "serve", "s", false, "Run as signal broker only")
	pflag.IntVarP(&config.Port, "port", "p", 8080, "Signal broker port")
	pflag.StringVar(&config.SignalURL, "signal", saved.SignalURL, "Signal broker URL")
	pflag.BoolVar(&localMode, "local", false, "Connect to a broker on localhost")
	pflag.StringVarP(&config.Room, "room", "r", "", "Room code to join first ('new' mints one)")
	pflag.StringVarP(&config.Name, "name", "n", saved.DisplayName, "Display name shown to other participants")
	pflag.BoolVar(&config.Audio, "audio", saved.CaptureAudio, "Capture audio alongside the screen")
	pflag.IntVar(&config.FPS, "fps", saved.FPS, "Capture framerate")
	pflag.BoolVarP(&config.Verbose, "verbose", "v", false, "Enable debug logging")
	pflag.Parse()

	if localMode {
		config.SignalURL = LocalSignalServer
	}
	return config
}

func main() {
	saved, err := settings.Load()
	if err != nil {
		fmt.Printf("Warning: could not load settings: %v\n", err)
	}
	config := parseFlags(saved)

	log.SetupLogger()
	if config.Verbose {
		log.SetVerbose()
	}

	if config.ServeMode {
		runBroker(config.Port)
		return
	}

	if err := runClient(config, saved); err != nil {
		log.Fatalf("%v", err)
	}
}

func runBroker(port int) {
	server := signal.NewServer()
	addr := fmt.Sprintf(":%d", port)

	fmt.Printf("Starting signal broker on http://localhost%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.ListenAndServe(addr); err != nil {
		log.Fatalf("Broker error: %v", err)
	}
}

func runClient(config Config, saved settings.UserSettings) error {
	rooms, err := buildRooms(config.Room)
	if err != nil {
		return err
	}

	selfID := uuid.NewString()
	displayName := config.Name
	if displayName == "" {
		displayName = "User " + selfID[:8]
	}

	// Persist name changes so the next run picks them up.
	if config.Name != "" && config.Name != saved.DisplayName {
		saved.DisplayName = config.Name
		if err := settings.Save(saved); err != nil {
			log.Debugf("save settings: %v", err)
		}
	}

	// The TUI owns the terminal; keep log output off it.
	if f, err := os.OpenFile("chatshare.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}

	bus, err := signal.Dial(config.SignalURL)
	if err != nil {
		return fmt.Errorf("connect to signal broker %s: %w", config.SignalURL, err)
	}
	defer bus.Close()

	maxViewers := saved.MaxViewers

	coord := share.NewCoordinator(share.CoordinatorConfig{
		SelfID:      selfID,
		DisplayName: displayName,
		Bus:         bus,
		Peers:       rtc.NewFactory(rtc.Config{}),
		Capture: rtc.NewSyntheticCapture(rtc.CaptureOptions{
			FPS:       config.FPS,
			WithAudio: config.Audio,
		}),
		MaxViewers: maxViewers,
	})
	defer coord.Close()

	log.Infof("joining as %s (%s)", displayName, selfID)
	return RunTUI(coord, rooms)
}
