package app

import (
	"context"
	"log"
	"time"

	"github.com/louisbranch/gamewatch/internal/services/tracker/storage"
	"github.com/louisbranch/gamewatch/internal/services/tracker/ztcentral"
)

// blockBatchSize caps deauthorizations per maintenance pass to stay well
// under the ZeroTier Central API rate limit.
const blockBatchSize = 15

// memberSyncWindow bounds which Central members are mirrored locally. Members
// idle longer than this are left to the cleanup pruner.
const memberSyncWindow = 30 * 24 * time.Hour

// Maintenance is the periodic housekeeping pass: prune stale storage rows,
// mirror ZeroTier Central members into local storage, and deauthorize
// members whose address is banned.
type Maintenance struct {
	store     storage.Store
	zt        *ztcentral.Client
	networkID string
	clock     func() time.Time
}

// NewMaintenance wires a maintenance pass. zt may be nil, which limits the
// pass to storage cleanup.
func NewMaintenance(store storage.Store, zt *ztcentral.Client, networkID string) *Maintenance {
	return &Maintenance{store: store, zt: zt, networkID: networkID, clock: time.Now}
}

// Run executes one maintenance pass. Each step is independent; a failing
// step is logged and the rest still run.
func (m *Maintenance) Run(ctx context.Context) {
	now := m.clock()
	if err := m.store.Cleanup(ctx, now); err != nil {
		log.Printf("maintenance: cleanup: %v", err)
	}
	if m.zt == nil {
		return
	}
	if err := m.syncMembers(ctx, now); err != nil {
		log.Printf("maintenance: sync members: %v", err)
	}
	if err := m.blockBanned(ctx); err != nil {
		log.Printf("maintenance: block banned: %v", err)
	}
}

func (m *Maintenance) syncMembers(ctx context.Context, now time.Time) error {
	members, err := m.zt.Members(ctx, m.networkID)
	if err != nil {
		return err
	}
	for _, member := range members {
		if now.Sub(member.LastSeen) > memberSyncWindow {
			continue
		}
		status := ""
		if !member.Authorized {
			status = storage.MemberStatusBlocked
		}
		record := storage.Member{
			ID:              member.ID,
			PhysicalAddress: member.PhysicalAddress,
			LastSeen:        member.LastSeen,
			Status:          status,
		}
		if err := m.store.SaveMember(ctx, record); err != nil {
			log.Printf("maintenance: save member %s: %v", member.ID, err)
		}
	}
	return nil
}

// blockBanned deauthorizes members whose physical address has an active ban.
// The member is marked blocked locally only after Central accepts the
// change, so a failed call is retried on the next pass.
func (m *Maintenance) blockBanned(ctx context.Context) error {
	ids, err := m.store.MembersToBlock(ctx, blockBatchSize)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := m.zt.SetAuthorized(ctx, m.networkID, id, false); err != nil {
			log.Printf("maintenance: deauthorize member %s: %v", id, err)
			continue
		}
		if err := m.store.SetMemberStatus(ctx, id, storage.MemberStatusBlocked); err != nil {
			log.Printf("maintenance: mark member %s blocked: %v", id, err)
			continue
		}
		log.Printf("maintenance: blocked member %s", id)
	}
	return nil
}
