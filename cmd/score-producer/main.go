package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/advent-arcade/internal/domain"
	"github.com/advent-arcade/internal/games"
)

var nameParts = []string{
	"Elf", "Rudolph", "Frosty", "Jingle", "Tinsel", "Sprout", "Holly", "Ivy", "Nutmeg", "Pepper",
	"Cocoa", "Sleigh", "Mistle", "Comet", "Cupid", "Dasher", "Dancer", "Prancer", "Vixen", "Blitzen",
}

func playerName(idx int) string {
	return fmt.Sprintf("%s%d", nameParts[idx%len(nameParts)], idx/len(nameParts)+1)
}

func gameIDs(list string) []string {
	if list != "" {
		return strings.Split(list, ",")
	}
	var ids []string
	for _, g := range games.DefaultGames() {
		ids = append(ids, g.ID)
	}
	return ids
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "arcade-scores", "Kafka topic")
	gameList := flag.String("games", "", "Games to play (comma-separated, default: the built-in catalog)")
	totalPlayers := flag.Int("players", 200, "Number of distinct players")
	rate := flag.Int("rate", 50, "Submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *totalPlayers < 1 || *rate < 1 {
		log.Fatal("players and rate must be positive")
	}
	ids := gameIDs(*gameList)

	fmt.Println("Advent arcade score producer")
	fmt.Printf("  Brokers:  %s\n", *brokers)
	fmt.Printf("  Topic:    %s\n", *topic)
	fmt.Printf("  Games:    %s\n", strings.Join(ids, ", "))
	fmt.Printf("  Players:  %d\n", *totalPlayers)
	fmt.Printf("  Rate:     %d/sec\n\n", *rate)

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	send := func(sub domain.ScoreSubmission) {
		data, err := json.Marshal(sub)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(domain.FoldName(sub.Username)),
			Value: sarama.ByteEncoder(data),
		}
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	var submitted int64
	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-deadline:
			shutdown("Duration reached")
			return

		case <-ticker.C:
			// a small group of regulars plays most of the games
			idx := rand.Intn(*totalPlayers)
			if rand.Intn(100) < 60 {
				idx = rand.Intn(min(10, *totalPlayers))
			}
			send(domain.ScoreSubmission{
				GameName: ids[rand.Intn(len(ids))],
				Username: playerName(idx),
				Score:    int64(rand.Intn(1000)),
				PlayTime: int64(rand.Intn(300) + 10),
			})
			submitted++

		case <-statsTicker.C:
			fmt.Printf("[%s] Submitted: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				submitted,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
