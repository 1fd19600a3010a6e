package team

import (
	"context"
	"errors"
	"net/mail"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/wavecall/api/internal/apperr"
	"github.com/wavecall/api/internal/cache"
	"github.com/wavecall/api/internal/domain"
	"github.com/wavecall/api/internal/repository"
)

// Service enforces team-membership invariants and keeps the read cache
// consistent with the write path. Invalidation sets are always computed
// from the pre-mutation membership (or the union with the added members):
// every user whose visible team list changed must be invalidated, and the
// post-mutation set alone would miss users who just left.
type Service struct {
	teams  repository.TeamRepository
	users  repository.UserRepository
	cache  cache.TeamCache
	logger *slog.Logger
}

// New constructs a Service.
func New(teams repository.TeamRepository, users repository.UserRepository, teamCache cache.TeamCache, logger *slog.Logger) Service {
	return Service{teams: teams, users: users, cache: teamCache, logger: logger}
}

// Create registers a team for the caller. Every email in memberEmails must
// resolve to a registered account; resolution is all-or-nothing and the
// error lists every unresolved address. The creator is always the first
// member, exactly once, even if their own email appears in the list.
func (s Service) Create(ctx context.Context, identity domain.Identity, name string, memberEmails []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Validation("Team name is required")
	}
	emails, err := normalizeEmails(memberEmails)
	if err != nil {
		return err
	}
	resolved, err := s.resolveEmails(ctx, emails)
	if err != nil {
		return err
	}

	memberIDs := make([]string, 0, len(resolved)+1)
	seen := make(map[string]struct{}, len(resolved)+1)
	for _, user := range resolved {
		if _, ok := seen[user.ID]; ok {
			continue
		}
		seen[user.ID] = struct{}{}
		memberIDs = append(memberIDs, user.ID)
	}
	if _, ok := seen[identity.ID]; !ok {
		memberIDs = append(memberIDs, identity.ID)
	}

	team := &domain.Team{
		ID:        uuid.NewString(),
		Name:      name,
		CreatorID: identity.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.teams.CreateTeamWithMembers(ctx, team, memberIDs); err != nil {
		return err
	}

	s.invalidate(ctx, team.ID, memberIDs)
	s.logger.Info("team created", "team_id", team.ID, "creator_id", identity.ID, "members", len(memberIDs))
	return nil
}

// List returns the caller's teams with their member rosters. Reads are
// cache-first; a hit is returned verbatim and may be stale within the TTL.
// An empty result is cached too, so later team creation must invalidate it.
func (s Service) List(ctx context.Context, userID string) ([]domain.TeamWithMembers, error) {
	if cached, ok := s.cache.GetUserTeams(ctx, userID); ok {
		s.logger.Debug("team list cache hit", "user_id", userID)
		return cached, nil
	}

	teamIDs, err := s.teams.ListTeamIDsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(teamIDs) == 0 {
		empty := []domain.TeamWithMembers{}
		s.populate(ctx, userID, empty)
		return empty, nil
	}

	teams, err := s.teams.GetTeamsByIDs(ctx, teamIDs)
	if err != nil {
		return nil, err
	}
	// Newest team first; the listing order is part of the contract, not
	// an artifact of the store.
	sort.Slice(teams, func(i, j int) bool { return teams[i].CreatedAt.After(teams[j].CreatedAt) })
	details, err := s.teams.ListMemberDetails(ctx, teamIDs)
	if err != nil {
		return nil, err
	}
	membersByTeam := make(map[string][]domain.MemberInfo, len(teamIDs))
	for _, d := range details {
		membersByTeam[d.TeamID] = append(membersByTeam[d.TeamID], domain.MemberInfo{
			UserID: d.UserID,
			Name:   d.Name,
			Email:  d.Email,
		})
	}

	result := make([]domain.TeamWithMembers, 0, len(teams))
	for _, t := range teams {
		members := membersByTeam[t.ID]
		if members == nil {
			members = []domain.MemberInfo{}
		}
		result = append(result, domain.TeamWithMembers{
			ID:        t.ID,
			Name:      t.Name,
			CreatorID: t.CreatorID,
			Members:   members,
		})
	}

	s.populate(ctx, userID, result)
	return result, nil
}

// Leave removes the caller's membership. The invalidation set is snapshotted
// before the delete so it still includes the departing user, whose own
// cached list must also be refreshed.
func (s Service) Leave(ctx context.Context, teamID, userID string) error {
	if _, err := s.teams.GetMembership(ctx, teamID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("You are not a member of this team")
		}
		return err
	}

	memberIDs, err := s.teams.ListMemberIDs(ctx, teamID)
	if err != nil {
		return err
	}
	if err := s.teams.DeleteMembership(ctx, teamID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("You are not a member of this team")
		}
		return err
	}

	s.invalidate(ctx, teamID, memberIDs)
	s.logger.Info("member left team", "team_id", teamID, "user_id", userID)
	return nil
}

// AddMembers adds the users behind the given emails to the team. The caller
// must be a member. Emails resolve all-or-nothing; users who are already
// members are skipped, and the call conflicts when nobody is new. The cache
// invalidation covers existing and added members.
func (s Service) AddMembers(ctx context.Context, teamID, callerID string, memberEmails []string) error {
	if _, err := s.teams.GetMembership(ctx, teamID, callerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("You are not a member of this team")
		}
		return err
	}

	emails, err := normalizeEmails(memberEmails)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		return apperr.Validation("At least one email is required")
	}
	resolved, err := s.resolveEmails(ctx, emails)
	if err != nil {
		return err
	}

	existing, err := s.teams.ListMemberIDs(ctx, teamID)
	if err != nil {
		return err
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		existingSet[id] = struct{}{}
	}
	newIDs := make([]string, 0, len(resolved))
	for _, user := range resolved {
		if _, ok := existingSet[user.ID]; !ok {
			newIDs = append(newIDs, user.ID)
		}
	}
	if len(newIDs) == 0 {
		return apperr.Conflict("All users are already members of this team")
	}

	if err := s.teams.AddMembers(ctx, teamID, newIDs, time.Now().UTC()); err != nil {
		return err
	}

	s.invalidate(ctx, teamID, append(existing, newIDs...))
	s.logger.Info("members added", "team_id", teamID, "caller_id", callerID, "added", len(newIDs))
	return nil
}

// invalidate drops cache entries for every listed member. Failures are
// logged only: the mutation is committed and TTL bounds the staleness.
func (s Service) invalidate(ctx context.Context, teamID string, memberIDs []string) {
	if err := s.cache.InvalidateTeamCache(ctx, teamID, memberIDs); err != nil {
		s.logger.Warn("team cache invalidation failed", "team_id", teamID, "error", err)
	}
}

func (s Service) populate(ctx context.Context, userID string, teams []domain.TeamWithMembers) {
	if err := s.cache.SetUserTeams(ctx, userID, teams); err != nil {
		s.logger.Warn("team cache populate failed", "user_id", userID, "error", err)
	}
}

// resolveEmails loads the users behind every email, failing with a batch
// NotFoundError naming each unresolved address.
func (s Service) resolveEmails(ctx context.Context, emails []string) ([]domain.User, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	users, err := s.users.GetUsersByEmails(ctx, emails)
	if err != nil {
		return nil, err
	}
	if len(users) != len(emails) {
		found := make(map[string]struct{}, len(users))
		for _, u := range users {
			found[strings.ToLower(u.Email)] = struct{}{}
		}
		missing := make([]string, 0, len(emails)-len(users))
		for _, email := range emails {
			if _, ok := found[email]; !ok {
				missing = append(missing, email)
			}
		}
		return nil, apperr.NotFound("Email(s) not registered: %s", strings.Join(missing, ", "))
	}
	return users, nil
}

// normalizeEmails trims, lowercases, validates, and deduplicates.
func normalizeEmails(emails []string) ([]string, error) {
	out := make([]string, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperr.Validation("Invalid email format")
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out, nil
}
