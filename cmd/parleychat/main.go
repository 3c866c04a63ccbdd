package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/the-missionary-company/parley/internal/chat"
	"github.com/the-missionary-company/parley/internal/identity"
	"github.com/the-missionary-company/parley/internal/llm"
	"github.com/the-missionary-company/parley/internal/storage/sqlite"
	"github.com/the-missionary-company/parley/internal/voice"
	"github.com/the-missionary-company/parley/pkg/logger"
)

// parleychat is a terminal client for the parley relay: it streams assistant
// output token by token, records voice input through the relay's transcribe
// endpoint, and keeps a local history of finished conversations.
func main() {
	serverURL := flag.String("server", "http://localhost:8080", "parley server base URL")
	model := flag.String("model", "claude-sonnet", "model selector (claude-sonnet, claude-haiku, openai)")
	user := flag.String("user", "", "user ID for local history (empty disables persistence)")
	historyPath := flag.String("history", "parleychat.db", "local history database path")
	recordCmd := flag.String("record-cmd", "", "shell command producing raw PCM on stdout (default: arecord)")
	maxRecording := flag.Duration("max-recording", voice.DefaultMaxRecording, "recording time ceiling")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: *logLevel, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var store chat.ConversationStore
	var who identity.Provider = identity.Anonymous{}
	if *user != "" {
		db, err := sqlite.Open(*historyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open history: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		store = &localStore{storage: sqlite.NewConversationStorage(db, log)}
		who = &identity.Static{User: identity.User{ID: *user}}
	}

	base := strings.TrimRight(*serverURL, "/")

	consumer := chat.NewConsumer(base+"/api/v1/chat-stream", *model, store, who, log)
	consumer.OnDelta = func(delta string) {
		fmt.Print(delta)
	}

	input := &chat.InputBuffer{}

	const sampleRate, channels = 16000, 1
	openDevice := voice.DefaultExecDevice(sampleRate, channels)
	if *recordCmd != "" {
		openDevice = voice.NewExecDevice("sh", "-c", *recordCmd)
	}
	recorder := voice.NewRecorder(
		openDevice,
		voice.NewRelayClient(base+"/api/v1/transcribe", log),
		*maxRecording,
		sampleRate,
		channels,
		log,
	)
	recorder.OnTranscript = func(text string) {
		input.AppendTranscript(text)
		fmt.Printf("\n(transcribed) pending input: %s\n", input.Text())
	}

	// Ctrl-C cancels the in-flight stream instead of killing the session
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		for range interrupts {
			consumer.Cancel()
		}
	}()

	fmt.Printf("parleychat connected to %s (model %s).\n", *serverURL, *model)
	fmt.Println("Commands: /voice toggles recording, /cancel aborts it, /send submits pending input, empty line quits.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nyou> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			recorder.Cancel()
			return

		case "/voice":
			toggleRecording(recorder)

		case "/cancel":
			recorder.Cancel()
			fmt.Println("(voice cancelled)")

		case "/send":
			submit(consumer, input)

		default:
			// Typed text joins whatever a voice transcript already queued
			input.AppendTranscript(line)
			submit(consumer, input)
		}
	}
}

// toggleRecording starts the recorder, or stops it and waits for the
// transcript when already recording
func toggleRecording(recorder *voice.Recorder) {
	switch recorder.Phase() {
	case voice.PhaseIdle:
		if err := recorder.Start(); err != nil {
			fmt.Printf("failed to start recording: %v\n", err)
			return
		}
		fmt.Println("(recording, /voice to stop)")
	case voice.PhaseRecording:
		fmt.Println("(transcribing...)")
		if _, err := recorder.Stop(context.Background()); err != nil {
			fmt.Printf("transcription failed: %v\n", err)
		}
	default:
		fmt.Println("(still transcribing, /cancel to abort)")
	}
}

// submit streams the pending input through the relay
func submit(consumer *chat.Consumer, input *chat.InputBuffer) {
	line := input.Text()
	if line == "" {
		fmt.Println("(nothing to send)")
		return
	}
	input.Clear()

	fmt.Print("assistant> ")
	result, err := consumer.Submit(context.Background(), line)
	switch {
	case errors.Is(err, chat.ErrStreamActive):
		fmt.Println("(still streaming, hit Ctrl-C to stop it first)")
	case err != nil:
		fmt.Printf("\nerror: %v\n", err)
	case result.State == chat.StateCancelled:
		fmt.Println("\n(stopped)")
	default:
		fmt.Println()
	}
}

// localStore adapts the SQLite conversation storage to the consumer's
// persistence boundary
type localStore struct {
	storage *sqlite.ConversationStorage
}

func (s *localStore) Append(userID string, turns []llm.Message, model string, timestamp time.Time) error {
	records := make([]sqlite.TurnRecord, 0, len(turns))
	for _, turn := range turns {
		records = append(records, sqlite.TurnRecord{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	_, err := s.storage.Append(userID, records, model, timestamp)
	return err
}
