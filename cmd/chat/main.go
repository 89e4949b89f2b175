// Command chat is an interactive terminal client for the query API.
// Each line typed is sent to POST /api/query and the grounded answer
// is printed with its sources.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type queryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type source struct {
	ChunkID string  `json:"chunk_id"`
	FileID  string  `json:"file_id"`
	Score   float32 `json:"score"`
	Excerpt string  `json:"excerpt"`
}

type answer struct {
	Text         string   `json:"text"`
	Sources      []source `json:"sources"`
	ContextCount int      `json:"context_count"`
	Grounded     bool     `json:"grounded"`
	ElapsedMS    int64    `json:"elapsed_ms"`
}

func main() {
	var (
		apiURL  = flag.String("api", "http://localhost:8080", "API server base URL")
		topK    = flag.Int("top-k", 0, "number of chunks to retrieve (0 for server default)")
		showSrc = flag.Bool("sources", true, "print source chunks with each answer")
		timeout = flag.Duration("timeout", 90*time.Second, "per-question timeout")
	)
	flag.Parse()

	client := &http.Client{}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	fmt.Println("asclepia chat. Type a question, or 'exit' to quit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		if err := ask(client, *apiURL, question, *topK, *showSrc, *timeout); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func ask(client *http.Client, apiURL, question string, topK int, showSrc bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	body, err := json.Marshal(queryRequest{Question: question, TopK: topK})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("server: %s", e.Error)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var a answer
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(a.Text)
	if showSrc && len(a.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range a.Sources {
			fmt.Printf("  [%s] score %.3f  %s\n", s.ChunkID, s.Score, s.Excerpt)
		}
	}
	fmt.Printf("\n(%dms, grounded=%v, contexts=%d)\n\n", a.ElapsedMS, a.Grounded, a.ContextCount)
	return nil
}
