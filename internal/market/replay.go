package market

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// replayTimeLayout matches the historical tick dumps: 20061231:15:04:05.
const replayTimeLayout = "20060102:15:04:05"

// ReadReplayFile parses a semicolon-delimited historical tick file:
//
//	timestamp;bid;offer;last;bidSize;offerSize[;volume]
//
// Any malformed line fails the whole read; silent corruption of offline
// data is worse than a hard stop.
func ReadReplayFile(path string) ([]Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	ticks := make([]Tick, 0, 10000)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tick, err := parseReplayLine(line)
		if err != nil {
			return nil, fmt.Errorf("replay file %s line %d: %w", path, lineNo, err)
		}
		tick.Seq = int64(len(ticks) + 1)
		ticks = append(ticks, tick)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	return ticks, nil
}

func parseReplayLine(line string) (Tick, error) {
	parts := strings.Split(line, ";")
	if len(parts) != 6 && len(parts) != 7 {
		return Tick{}, fmt.Errorf("expected 6 or 7 fields, got %d", len(parts))
	}

	ts, err := time.Parse(replayTimeLayout, parts[0])
	if err != nil {
		return Tick{}, fmt.Errorf("bad timestamp %q: %w", parts[0], err)
	}
	bid, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Tick{}, fmt.Errorf("bad bid %q: %w", parts[1], err)
	}
	offer, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Tick{}, fmt.Errorf("bad offer %q: %w", parts[2], err)
	}
	last, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return Tick{}, fmt.Errorf("bad last %q: %w", parts[3], err)
	}
	bidSize, err := strconv.Atoi(parts[4])
	if err != nil {
		return Tick{}, fmt.Errorf("bad bid size %q: %w", parts[4], err)
	}
	offerSize, err := strconv.Atoi(parts[5])
	if err != nil {
		return Tick{}, fmt.Errorf("bad offer size %q: %w", parts[5], err)
	}
	volume := 0
	if len(parts) == 7 {
		volume, err = strconv.Atoi(parts[6])
		if err != nil {
			return Tick{}, fmt.Errorf("bad volume %q: %w", parts[6], err)
		}
	}

	return Tick{
		Time:      ts,
		Bid:       bid,
		Offer:     offer,
		Last:      last,
		BidSize:   bidSize,
		OfferSize: offerSize,
		Volume:    volume,
	}, nil
}
