package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/parley/capability"
	"github.com/BaSui01/parley/config"
	"github.com/BaSui01/parley/manager"
	"github.com/BaSui01/parley/orchestrator"
	"github.com/BaSui01/parley/speaker"
	"github.com/BaSui01/parley/stream"
)

// loadFacts is the shared scenario block both parties see.
var loadFacts = []speaker.Fact{
	{Label: "Load ID", Value: "HDX-2478"},
	{Label: "Origin", Value: "Dallas, TX"},
	{Label: "Destination", Value: "Atlanta, GA"},
	{Label: "Pickup", Value: "Tomorrow 06:00"},
	{Label: "Rate", Value: "$2.10 per mile"},
}

// freightNegotiationRoles builds the scripted dispatcher/driver pair
// used by the demo command and the demo start endpoint.
func freightNegotiationRoles() []orchestrator.RoleBinding {
	dispatcher := capability.NewScripted(capability.ScriptedConfig{
		Lines: []string{
			"Hey Chris, Tim here from dispatch. I've got load HDX-2478 out of Dallas heading to Atlanta, picks up tomorrow at six. You interested?",
			"Rate's sitting at two ten a mile, roughly 780 miles door to door. Fuel surcharge is included in that.",
			"I can bump it to two twenty-five but that's my ceiling. Pickup window is firm though, receiver wants it Thursday morning.",
			"Done, two twenty-five it is. I'll send the rate confirmation to your email. Drive safe out there.",
		},
		Delay: 50 * time.Millisecond,
	})

	driver := capability.NewScripted(capability.ScriptedConfig{
		Lines: []string{
			"Hey Tim. Dallas to Atlanta, that works for me, I'm empty in Fort Worth tonight. What's it paying?",
			"Two ten is a little light for that lane. Any chance you can get me closer to two and a quarter?",
			"Two twenty-five works. Book it, I'll be at the shipper by five thirty.",
			"Appreciate it Tim, catch you later.",
		},
		Delay:            50 * time.Millisecond,
		ConcludeWhenDone: true,
	})

	return []orchestrator.RoleBinding{
		{
			Profile: speaker.Profile{
				RoleID:           speaker.RoleDispatcher,
				DisplayName:      "Tim",
				BaseInstructions: "You are Tim, a freight dispatcher. Offer the load, negotiate the rate within your authority, and confirm the booking.",
				Facts:            loadFacts,
			},
			Capability: dispatcher,
		},
		{
			Profile: speaker.Profile{
				RoleID:           speaker.RoleDriver,
				DisplayName:      "Chris",
				BaseInstructions: "You are Chris, an owner-operator truck driver. Evaluate the load, push for a better rate, and accept when the numbers work.",
				Facts:            loadFacts,
			},
			Capability: driver,
		},
	}
}

// runDemo runs the freight negotiation locally and prints the
// conversation as it happens.
func runDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	maxTurns := fs.Int("max-turns", 20, "Turn ceiling for the demo conversation")
	fs.Parse(args)

	logger := initLogger(config.LogConfig{Level: "warn", Format: "console"})
	defer logger.Sync()

	b := stream.NewBroadcaster(logger)
	defer b.Close()
	_, events := b.Subscribe()

	gov := orchestrator.DefaultGovernorConfig()
	gov.MaxTurns = *maxTurns

	mgr := manager.New(manager.Config{
		Governor:    gov,
		Broadcaster: b,
	}, logger)

	ctx := context.Background()
	id, err := mgr.StartConversation(ctx, manager.ConversationSpec{
		Roles: freightNegotiationRoles(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start demo conversation: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversation %s\n\n", id)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch ev.Type {
			case stream.EventUtterance:
				fmt.Printf("%s: %s\n\n", ev.Utterance.SpeakerLabel, ev.Utterance.Content)
			case stream.EventTerminated:
				fmt.Printf("-- conversation over (%s, %d turns)\n", ev.Reason, ev.TurnCount)
				return
			}
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, gov.MaxDuration+time.Minute)
	defer cancel()
	if _, err := mgr.Wait(waitCtx, id); err != nil {
		logger.Error("demo conversation did not finish", zap.Error(err))
	}
	<-done

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 10*time.Second)
	defer cancelShutdown()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Error("demo shutdown failed", zap.Error(err))
	}
}
