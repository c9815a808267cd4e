// Package sync reconciles the membership snapshot against the
// external directory and enforces revocations on live connections.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/N1K0LAAAA/ImsBridgeServer/internal/auth"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/directory"
	"github.com/N1K0LAAAA/ImsBridgeServer/internal/telemetry"
	"github.com/N1K0LAAAA/ImsBridgeServer/pkg/member"
)

// Summary is the synchronizer's entire contract with the outside
// world, used for operator-facing reporting.
type Summary struct {
	TotalProcessed int      `json:"total_processed"`
	NewMembers     int      `json:"new_members_added"`
	MembersRemoved int      `json:"members_who_left"`
	FinalCount     int      `json:"final_member_count"`
	Log            []string `json:"log"`
}

// Enforcer is the router hook used to force-disconnect revoked
// identities after the credential store has been rewritten.
type Enforcer interface {
	DisconnectPlayer(player string) bool
}

type Synchronizer struct {
	logger   *slog.Logger
	store    *member.Store
	dir      *directory.Client
	keys     *auth.KeyStore
	enforcer Enforcer
	guilds   []string
}

func New(logger *slog.Logger, store *member.Store, dir *directory.Client, keys *auth.KeyStore, enforcer Enforcer, guilds []string) *Synchronizer {
	return &Synchronizer{
		logger:   logger.With(slog.String("component", "sync")),
		store:    store,
		dir:      dir,
		keys:     keys,
		enforcer: enforcer,
		guilds:   guilds,
	}
}

// Synchronize runs one full reconciliation pass.
//
// Members present in both the previous and current rosters keep their
// bridge key, so a routine pass never invalidates active sessions.
// New members get a fresh key and a best-effort profile lookup; a
// failed lookup skips the member for this pass only. Members absent
// from every current roster are removed, and their connections are
// force-closed only after the snapshot and credential store have been
// rewritten, so a concurrent handshake cannot race the revocation.
//
// A roster fetch failure aborts only that guild's pass: its previous
// records are carried over unchanged and its members are not treated
// as leavers.
func (s *Synchronizer) Synchronize(ctx context.Context) (*Summary, error) {
	existing, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	existingByID := make(map[string]member.Record, len(existing))
	for _, rec := range existing {
		existingByID[rec.PlayerID] = rec
	}

	summary := &Summary{}
	currentIDs := make(map[string]struct{})
	failedGuilds := make(map[string]struct{})
	var updated []member.Record

	for _, guild := range s.guilds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.logf(summary, "Processing guild: %s", guild)

		ids, err := s.dir.GuildMemberIDs(ctx, guild)
		if err != nil {
			failedGuilds[guild] = struct{}{}
			telemetry.Inc(telemetry.SyncErrors)
			s.logger.Error("Guild roster fetch failed", slog.String("guild", guild), slog.Any("error", err))
			s.logf(summary, "Error processing %s: %v", guild, err)
			continue
		}

		for _, id := range ids {
			if _, dup := currentIDs[id]; dup {
				continue
			}
			currentIDs[id] = struct{}{}
			summary.TotalProcessed++

			if rec, ok := existingByID[id]; ok {
				// Key continuity: an existing member keeps their key.
				rec.Guild = guild
				updated = append(updated, rec)
				continue
			}

			rec, err := s.newMember(ctx, id, guild)
			if err != nil {
				s.logger.Warn("Skipping new member this pass",
					slog.String("playerID", id),
					slog.Any("error", err),
				)
				s.logf(summary, "Could not fetch info for new member %s", id)
				continue
			}
			updated = append(updated, rec)
			summary.NewMembers++
			s.logf(summary, "Added new member: %s (%s)", rec.PlayerName, guild)
		}
		s.logf(summary, "Completed %s: %d members processed", guild, len(ids))
	}

	// Carry failed guilds over untouched; their members are neither
	// refreshed nor counted as leavers. A member already picked up
	// from a successfully fetched guild is not duplicated.
	var removed []member.Record
	for _, rec := range existing {
		if _, failed := failedGuilds[rec.Guild]; failed {
			if _, present := currentIDs[rec.PlayerID]; !present {
				updated = append(updated, rec)
			}
			continue
		}
		if _, present := currentIDs[rec.PlayerID]; !present {
			removed = append(removed, rec)
		}
	}
	summary.MembersRemoved = len(removed)
	summary.FinalCount = len(updated)

	if err := s.store.Replace(updated); err != nil {
		return nil, fmt.Errorf("sync: persist snapshot: %w", err)
	}

	// Rewrite credentials before enforcement so a re-authentication
	// attempt during the pass cannot resurrect a revoked key.
	s.keys.Reload(updated)
	for _, rec := range removed {
		if s.enforcer != nil && s.enforcer.DisconnectPlayer(rec.PlayerName) {
			s.logf(summary, "Disconnected removed member: %s", rec.PlayerName)
		}
	}

	telemetry.Inc(telemetry.SyncPasses)
	telemetry.SetKnownMembers(summary.FinalCount)
	s.logger.Info("Synchronization pass complete",
		slog.Int("processed", summary.TotalProcessed),
		slog.Int("new", summary.NewMembers),
		slog.Int("removed", summary.MembersRemoved),
		slog.Int("final", summary.FinalCount),
	)
	return summary, nil
}

// newMember builds a record for a first-seen member, issuing a fresh
// bridge key.
func (s *Synchronizer) newMember(ctx context.Context, playerID, guild string) (member.Record, error) {
	s.logger.Debug("Fetching info for new member",
		slog.String("playerID", playerID),
		slog.Int("requestsRemaining", s.dir.Remaining()),
	)
	profile, err := s.dir.PlayerProfile(ctx, playerID)
	if err != nil {
		return member.Record{}, err
	}
	return member.Record{
		PlayerName:    profile.PlayerName,
		PlayerID:      profile.PlayerID,
		LinkedContact: profile.LinkedContact,
		BridgeKey:     member.NewKey(),
		Guild:         guild,
	}, nil
}

// Run executes Synchronize on a fixed interval until ctx is done.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Synchronize(ctx); err != nil {
				s.logger.Error("Scheduled synchronization failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Synchronizer) logf(summary *Summary, format string, args ...any) {
	summary.Log = append(summary.Log, fmt.Sprintf(format, args...))
}
