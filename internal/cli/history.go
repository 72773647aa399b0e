package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/matheus3301/chronsync/internal/rpc"
)

// Execute implements the go-flags Commander interface for HistoryCommand.
func (c *HistoryCommand) Execute(_ []string) error {
	req := &rpc.ListEntriesRequest{
		DeviceID:       c.Device,
		IncludeDeleted: c.Deleted,
		Query:          c.Query,
		Limit:          c.Limit,
	}
	if c.Since != "" {
		d, err := parseDuration(c.Since)
		if err != nil {
			return err
		}
		req.Since = c.base.clock().Add(-d).UnixMilli()
	}

	return c.base.withControl(func(ctx context.Context, ctl Control) error {
		resp, err := ctl.ListEntries(ctx, req)
		if err != nil {
			return err
		}
		if c.base.jsonOut() {
			return c.base.outputJSON(resp.Entries)
		}
		if len(resp.Entries) == 0 {
			c.base.printf("No entries found.\n")
			return nil
		}
		for _, e := range resp.Entries {
			title := e.Title
			if e.Deleted {
				title = "[deleted]"
			}
			c.base.printf("%s  %-30s %s\n    %s  (%s)\n",
				formatMillis(e.VisitTime), truncate(title, 30), e.URL, e.VisitID, e.SyncStatus)
		}
		return nil
	})
}

// Execute implements the go-flags Commander interface for VisitCommand.
func (c *VisitCommand) Execute(_ []string) error {
	return c.base.withControl(func(ctx context.Context, ctl Control) error {
		resp, err := ctl.RecordVisit(ctx, &rpc.RecordVisitRequest{Visit: rpc.Visit{
			URL:              c.URL,
			Title:            c.Title,
			VisitID:          c.ID,
			ReferringVisitID: c.Referrer,
			Transition:       c.Transition,
		}})
		if err != nil {
			return err
		}
		if c.base.jsonOut() {
			return c.base.outputJSON(resp)
		}
		if !resp.Recorded {
			c.base.printf("Skipped: %s is filtered by the capture settings.\n", c.URL)
			return nil
		}
		c.base.printf("Recorded %s\n", resp.Entry.VisitID)
		return nil
	})
}

// Execute implements the go-flags Commander interface for DeleteCommand.
func (c *DeleteCommand) Execute(_ []string) error {
	return c.base.withControl(func(ctx context.Context, ctl Control) error {
		if _, err := ctl.DeleteEntry(ctx, &rpc.DeleteEntryRequest{VisitID: c.Args.VisitID}); err != nil {
			return err
		}
		if c.base.jsonOut() {
			return c.base.outputJSON(map[string]string{"deleted": c.Args.VisitID})
		}
		c.base.printf("Deleted %s\n", c.Args.VisitID)
		return nil
	})
}

// Execute implements the go-flags Commander interface for ContentCommand.
func (c *ContentCommand) Execute(_ []string) error {
	content := c.Content
	if c.ContentFile != "" {
		if content != "" {
			return fmt.Errorf("--content and --content-file are mutually exclusive")
		}
		data, err := os.ReadFile(c.ContentFile)
		if err != nil {
			return fmt.Errorf("read content file: %w", err)
		}
		content = string(data)
	}
	if content == "" && c.Summary == "" {
		return fmt.Errorf("nothing to attach: pass --content, --content-file or --summary")
	}

	return c.base.withControl(func(ctx context.Context, ctl Control) error {
		_, err := ctl.AttachContent(ctx, &rpc.AttachContentRequest{
			VisitID: c.Args.VisitID,
			Content: content,
			Summary: c.Summary,
		})
		if err != nil {
			return err
		}
		if c.base.jsonOut() {
			return c.base.outputJSON(map[string]any{"visitId": c.Args.VisitID, "bytes": len(content)})
		}
		c.base.printf("Attached %d bytes to %s\n", len(content), c.Args.VisitID)
		return nil
	})
}
