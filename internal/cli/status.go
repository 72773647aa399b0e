package cli

import (
	"context"

	"github.com/matheus3301/chronsync/internal/rpc"
)

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(_ []string) error {
	return c.base.withControl(func(ctx context.Context, ctl Control) error {
		resp, err := ctl.Status(ctx, &rpc.StatusRequest{})
		if err != nil {
			return err
		}
		if c.base.jsonOut() {
			return c.base.outputJSON(resp)
		}
		c.printHuman(resp)
		return nil
	})
}

func (c *StatusCommand) printHuman(s *rpc.StatusResponse) {
	b := c.base
	remote := s.Remote
	if remote == "" {
		remote = "(none)"
	}
	b.printf("Profile:    %s\n", s.Profile)
	b.printf("Device:     %s (%s %s %s)\n", s.Device.DeviceID, s.Device.Platform, s.Device.BrowserName, s.Device.BrowserVersion)
	b.printf("State:      %s\n", s.State)
	b.printf("Remote:     %s\n", remote)
	b.printf("Last sync:  %s\n", formatMillis(s.LastSyncTime))
	if s.LastAttemptAt != 0 {
		b.printf("Last try:   %s (sent %d, received %d)\n", formatMillis(s.LastAttemptAt), s.LastSent, s.LastReceived)
	}
	if s.LastError != nil {
		b.printf("Last error: [%s] %s\n", s.LastError.Kind, s.LastError.Message)
	}
	b.printf("Entries:    %d (%d pending, %d deleted)\n", s.Entries, s.Pending, s.Tombstones)
	b.printf("Devices:    %d\n", s.Devices)
}

// Execute implements the go-flags Commander interface for SyncCommand.
func (c *SyncCommand) Execute(_ []string) error {
	return c.base.withControl(func(ctx context.Context, ctl Control) error {
		resp, err := ctl.SyncNow(ctx, &rpc.SyncNowRequest{Full: c.Full})
		if err != nil {
			return err
		}
		if c.base.jsonOut() {
			return c.base.outputJSON(resp)
		}
		if resp.Coalesced {
			c.base.printf("A sync was already running; this request was merged into it.\n")
			return nil
		}
		c.base.printf("Sent %d, received %d (%d new, %d updated, %d rejected)\n",
			resp.Sent, resp.Received, resp.Inserted, resp.Updated, resp.Rejected)
		c.base.printf("Checkpoint: %s\n", formatMillis(resp.LastSyncTime))
		return nil
	})
}

// Execute implements the go-flags Commander interface for DevicesCommand.
func (c *DevicesCommand) Execute(_ []string) error {
	return c.base.withControl(func(ctx context.Context, ctl Control) error {
		resp, err := ctl.ListDevices(ctx, &rpc.ListDevicesRequest{})
		if err != nil {
			return err
		}
		if c.base.jsonOut() {
			return c.base.outputJSON(resp.Devices)
		}
		if len(resp.Devices) == 0 {
			c.base.printf("No devices found.\n")
			return nil
		}
		for _, d := range resp.Devices {
			c.base.printf("%-38s %-14s %-10s %-19s %s\n",
				d.DeviceID, d.Platform, d.BrowserName, formatMillis(d.LastSeen), truncate(d.UserAgent, 40))
		}
		return nil
	})
}

// Execute implements the go-flags Commander interface for ConflictsCommand.
func (c *ConflictsCommand) Execute(_ []string) error {
	return c.base.withControl(func(ctx context.Context, ctl Control) error {
		resp, err := ctl.ListConflicts(ctx, &rpc.ListConflictsRequest{Limit: c.Limit})
		if err != nil {
			return err
		}
		if c.base.jsonOut() {
			return c.base.outputJSON(resp.Conflicts)
		}
		if len(resp.Conflicts) == 0 {
			c.base.printf("No conflicts recorded.\n")
			return nil
		}
		for _, cf := range resp.Conflicts {
			c.base.printf("%s  %-40s %-20s local=%d remote=%d\n",
				formatMillis(cf.DetectedAt), truncate(cf.VisitID, 40), cf.Resolution, cf.LocalModified, cf.RemoteModified)
		}
		return nil
	})
}
