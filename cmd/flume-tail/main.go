// Flume-tail follows a feed in real time and prints every change
// notification it receives. With -post it first adds a demo activity so
// there is something to see.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"github.com/sethvargo/go-envconfig"

	"github.com/jdholdren/flume"
	"github.com/jdholdren/flume/logger"
	"github.com/jdholdren/flume/realtime"
)

type config struct {
	FeedSlug   string `env:"FLUME_FEED_SLUG, required"`
	FeedUserID string `env:"FLUME_FEED_USER_ID, required"`
	FeedToken  string `env:"FLUME_FEED_TOKEN, required"`
}

func main() {
	post := flag.String("post", "", "post an activity with the given object before tailing")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	l := slog.New(logger.NewContextHandler(slog.NewTextHandler(os.Stderr, nil)))
	slog.SetDefault(l)

	client, err := flume.NewClientFromEnv(ctx)
	if err != nil {
		log.Fatalf("error creating client: %s", err)
	}

	feed, err := client.Feed(cfg.FeedSlug, cfg.FeedUserID, cfg.FeedToken)
	if err != nil {
		log.Fatalf("error creating feed: %s", err)
	}

	if *post != "" {
		activity, err := feed.AddActivity(ctx, flume.Activity{
			Verb:      "post",
			Object:    *post,
			ForeignID: flume.NewForeignID(),
		})
		if err != nil {
			log.Fatalf("error adding activity: %s", err)
		}
		slog.Info("posted activity", "id", activity.ID)
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	subCtx, subCancel := context.WithCancel(ctx)
	g.Add(func() error {
		sub, err := feed.Subscribe(func(msg realtime.Message) {
			for _, raw := range msg.New {
				var activity flume.Activity
				if err := json.Unmarshal(raw, &activity); err != nil {
					slog.Error("error decoding activity", "error", err)
					continue
				}
				fmt.Printf("%s %s %s %s\n", feed.ID(), activity.Actor, activity.Verb, activity.Object)
			}
			for _, id := range msg.Deleted {
				fmt.Printf("%s deleted %s\n", feed.ID(), id)
			}
		})
		if err != nil {
			return fmt.Errorf("error subscribing: %w", err)
		}
		defer sub.Cancel()

		<-subCtx.Done()
		return nil
	}, func(error) {
		feed.Unsubscribe()
		subCancel()
	})

	if err := g.Run(); err != nil {
		var sigErr run.SignalError
		if !errors.As(err, &sigErr) {
			log.Fatalf("error running: %s", err)
		}
	}
}
