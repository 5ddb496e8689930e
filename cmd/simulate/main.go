package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

type simConfig struct {
	apiBaseURL string
	serviceID  string
	workers    int
	duration   time.Duration
	hotSlots   int
}

type counters struct {
	created    atomic.Int64
	conflicts  atomic.Int64
	validation atomic.Int64
	rateLimit  atomic.Int64
	csrf       atomic.Int64
	other      atomic.Int64
}

type slotRef struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"is_available"`
}

type availabilityResponse struct {
	Availability map[string][]slotRef `json:"availability"`
}

type csrfResponse struct {
	Token string `json:"csrf_token"`
}

type bookingResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{}
	flag.StringVar(&cfg.apiBaseURL, "api", getenv("API_BASE_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&cfg.serviceID, "service", "consultation", "service to book")
	flag.IntVar(&cfg.workers, "workers", 20, "concurrent workers")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "run duration")
	flag.IntVar(&cfg.hotSlots, "hot-slots", 5, "number of slots all workers fight over")
	flag.Parse()

	log.Printf("simulate starting api=%s workers=%d duration=%s hot_slots=%d",
		cfg.apiBaseURL, cfg.workers, cfg.duration, cfg.hotSlots)

	client := &http.Client{Timeout: 10 * time.Second}

	slots, err := fetchAvailableSlots(client, cfg)
	if err != nil {
		log.Fatalf("fetch availability: %v", err)
	}
	if len(slots) == 0 {
		log.Fatal("no available slots to book, seed the calendar first")
	}
	if len(slots) > cfg.hotSlots {
		slots = slots[:cfg.hotSlots]
	}
	log.Printf("contending over %d slots, first=%s %s", len(slots), slots[0].Date, slots[0].StartTime)

	var c counters
	winners := struct {
		sync.Mutex
		bySlot map[string]int
	}{bySlot: make(map[string]int)}

	deadline := time.Now().Add(cfg.duration)
	var wg sync.WaitGroup
	for i := 0; i < cfg.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				slot := slots[rand.Intn(len(slots))]
				outcome := attemptBooking(client, cfg, slot, &c)
				if outcome == "created" {
					key := slot.Date + " " + slot.StartTime
					winners.Lock()
					winners.bySlot[key]++
					winners.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	report(&c, winners.bySlot)
}

func fetchAvailableSlots(client *http.Client, cfg simConfig) ([]slotRef, error) {
	resp, err := client.Get(fmt.Sprintf("%s/availability?service_id=%s", cfg.apiBaseURL, cfg.serviceID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("availability returned %d: %s", resp.StatusCode, body)
	}

	var parsed availabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	var out []slotRef
	for _, daySlots := range parsed.Availability {
		for _, s := range daySlots {
			if s.Available {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func attemptBooking(client *http.Client, cfg simConfig, slot slotRef, c *counters) string {
	token, err := fetchCSRFToken(client, cfg)
	if err != nil {
		c.other.Add(1)
		return "error"
	}

	payload, _ := json.Marshal(map[string]any{
		"service_id":       cfg.serviceID,
		"patient_name":     gofakeit.Name(),
		"patient_email":    gofakeit.Email(),
		"patient_phone":    fmt.Sprintf("(33) 9%04d-%04d", gofakeit.Number(0, 9999), gofakeit.Number(0, 9999)),
		"appointment_date": slot.Date,
		"appointment_time": slot.StartTime,
		"lgpd_consent":     true,
	})

	req, err := http.NewRequest(http.MethodPost, cfg.apiBaseURL+"/appointments", bytes.NewReader(payload))
	if err != nil {
		c.other.Add(1)
		return "error"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)

	resp, err := client.Do(req)
	if err != nil {
		c.other.Add(1)
		return "error"
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var parsed bookingResponse
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
		c.created.Add(1)
		return "created"
	case http.StatusConflict:
		c.conflicts.Add(1)
		return "conflict"
	case http.StatusBadRequest:
		c.validation.Add(1)
		return "validation"
	case http.StatusTooManyRequests:
		c.rateLimit.Add(1)
		return "rate_limited"
	case http.StatusForbidden:
		c.csrf.Add(1)
		return "csrf"
	default:
		var parsed errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
		c.other.Add(1)
		return parsed.Error
	}
}

func fetchCSRFToken(client *http.Client, cfg simConfig) (string, error) {
	resp, err := client.Get(cfg.apiBaseURL + "/csrf-token")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("csrf-token returned %d", resp.StatusCode)
	}

	var parsed csrfResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	return parsed.Token, nil
}

func report(c *counters, winners map[string]int) {
	fmt.Println("--- simulation report ---")
	fmt.Printf("created:      %d\n", c.created.Load())
	fmt.Printf("conflicts:    %d\n", c.conflicts.Load())
	fmt.Printf("validation:   %d\n", c.validation.Load())
	fmt.Printf("rate limited: %d\n", c.rateLimit.Load())
	fmt.Printf("csrf errors:  %d\n", c.csrf.Load())
	fmt.Printf("other:        %d\n", c.other.Load())

	doubleBooked := 0
	for slot, wins := range winners {
		if wins > 1 {
			doubleBooked++
			fmt.Printf("DOUBLE BOOKING: slot %s won %d times\n", slot, wins)
		}
	}
	if doubleBooked == 0 {
		fmt.Println("every contended slot was booked at most once")
	} else {
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
