// Command ingest feeds observations into a running cognigraph server from
// the command line or a file of one observation per line.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	var (
		server = flag.String("server", "http://localhost:8080", "cognigraph server base URL")
		file   = flag.String("file", "", "file with one observation per line (default: read args)")
		embed  = flag.Bool("embed", false, "request immediate embedding for each observation")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	var observations []string
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			logger.Fatal("open input", zap.Error(err))
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				observations = append(observations, line)
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Fatal("read input", zap.Error(err))
		}
	} else if flag.NArg() > 0 {
		observations = []string{strings.Join(flag.Args(), " ")}
	} else {
		fmt.Fprintln(os.Stderr, "usage: ingest [-server URL] [-embed] (-file PATH | observation text)")
		os.Exit(2)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	for _, obs := range observations {
		body, _ := json.Marshal(map[string]interface{}{"text": obs, "embed": *embed})
		resp, err := client.Post(*server+"/api/analyze/text", "application/json", bytes.NewReader(body))
		if err != nil {
			logger.Fatal("request failed", zap.Error(err))
		}
		var result struct {
			Status          string `json:"status"`
			WorkingMemoryID string `json:"working_memory_id"`
			Linked          []struct {
				TargetID string `json:"target"`
				Label    string `json:"relation_label"`
			} `json:"linked"`
			Warning string `json:"warning"`
			Error   string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			logger.Fatal("decode response", zap.Error(err))
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logger.Fatal("server rejected observation",
				zap.Int("status", resp.StatusCode), zap.String("error", result.Error))
		}
		logger.Info("observation ingested",
			zap.String("id", result.WorkingMemoryID),
			zap.String("status", result.Status),
			zap.Int("links", len(result.Linked)))
		if result.Warning != "" {
			logger.Warn("partial failure", zap.String("warning", result.Warning))
		}
	}
}
