package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/c360/ed247"
	"github.com/c360/ed247/stream"
)

// record is one received sample as shown in the table
type record struct {
	Received  time.Time
	Channel   string
	Stream    string
	UID       uint16
	Component uint16
	Sequence  uint16
	Data      []byte
}

// collector pops the samples of the dumped streams after every wait
type collector struct {
	ed      *ed247.Context
	streams []*stream.Stream
	limit   int
	records []record
}

func newCollector(ed *ed247.Context, pattern string, limit int) (*collector, error) {
	streams, err := ed.FindStreams(pattern)
	if err != nil {
		return nil, err
	}
	c := &collector{ed: ed, limit: limit}
	for _, s := range streams {
		if s.Direction().IsIn() {
			c.streams = append(c.streams, s)
		}
	}
	if len(c.streams) == 0 {
		return nil, fmt.Errorf("no input stream matches %q", pattern)
	}
	return c, nil
}

func (c *collector) full() bool {
	return c.limit > 0 && len(c.records) >= c.limit
}

// run waits for frames until the duration elapses or enough samples arrived
func (c *collector) run(duration, wait time.Duration) error {
	deadline := time.Now().Add(duration)
	for !c.full() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > wait {
			remaining = wait
		}
		err := c.ed.WaitFrame(remaining)
		switch ed247.StatusOf(err) {
		case ed247.StatusSuccess:
			c.drain()
		case ed247.StatusTimeout, ed247.StatusNoData:
		default:
			return err
		}
	}
	return nil
}

func (c *collector) drain() {
	for _, s := range c.streams {
		for !c.full() && s.RecvStackSize() > 0 {
			sample, _, err := s.PopSample()
			if err != nil {
				break
			}
			c.records = append(c.records, record{
				Received:  sample.RecvTimestamp.Time(),
				Channel:   s.ChannelName(),
				Stream:    s.Name(),
				UID:       s.UID(),
				Component: sample.Info.ComponentIdentifier,
				Sequence:  sample.Info.SequenceNumber,
				Data:      append([]byte(nil), sample.Bytes()...),
			})
		}
	}
}

// tableData lays the records out with a header row
func tableData(records []record) pterm.TableData {
	data := pterm.TableData{{"Received", "Channel", "Stream", "UID", "Component", "Seq", "Size", "Data"}}
	for _, r := range records {
		data = append(data, []string{
			r.Received.Format("15:04:05.000000"),
			r.Channel,
			r.Stream,
			strconv.Itoa(int(r.UID)),
			strconv.Itoa(int(r.Component)),
			strconv.Itoa(int(r.Sequence)),
			strconv.Itoa(len(r.Data)),
			hex.EncodeToString(r.Data),
		})
	}
	return data
}

func render(records []record, ed *ed247.Context) error {
	if len(records) == 0 {
		pterm.Warning.Println("No sample received")
	} else if err := pterm.DefaultTable.WithHasHeader().WithData(tableData(records)).Render(); err != nil {
		return err
	}
	for _, ch := range ed.Channels() {
		if missed := ch.MissedFrames(); missed > 0 {
			pterm.Warning.Printfln("Channel %s missed %d frames", ch.Name(), missed)
		}
	}
	pterm.Info.Printfln("%d samples", len(records))
	return nil
}
