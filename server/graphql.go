package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"pkgradar/kanban"
)

const schemaSDL = `
schema {
	query: Query
	mutation: Mutation
}

type Query {
	# The signed-in user. Null when the session is missing or belongs to
	# someone other than username.
	currentUser(username: String, token: String): User
	user(id: ID!): User
}

type Mutation {
	# Replaces the whole package list.
	updateUserPackages(id: ID!, packages: [PackageInput!]!): User
	# Replaces the board list. "All" is never stored.
	updateUserBoards(id: ID!, kanbanBoards: [String!]!): User
}

type User {
	id: ID!
	username: String!
	name: String!
	avatar: String!
	kanbanBoards: [String!]!
	packages: [Package!]!
}

type Package {
	id: ID!
	name: String!
	avatar: String!
	description: String!
	stars: Int!
	status: String!
	board: String!
}

input PackageInput {
	id: ID!
	name: String!
	avatar: String
	description: String
	stars: Int
	status: String!
	board: String!
}
`

func (a *api) graphqlHandler() http.Handler {
	return &relay.Handler{Schema: a.schema}
}

type rootResolver struct {
	api *api
}

func (r *rootResolver) CurrentUser(ctx context.Context, args struct {
	Username *string
	Token    *string
}) (*userResolver, error) {
	var u *User
	if args.Token != nil && *args.Token != "" {
		have, err := r.api.store.UserBySession(ctx, *args.Token)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		u = &have
	} else if have, ok := userFrom(ctx); ok {
		u = have
	}
	if u == nil {
		return nil, nil
	}
	if args.Username != nil && *args.Username != "" && !strings.EqualFold(*args.Username, u.Username) {
		return nil, nil
	}
	return &userResolver{u: *u}, nil
}

func (r *rootResolver) User(ctx context.Context, args struct{ ID graphql.ID }) (*userResolver, error) {
	id, err := parseUserID(args.ID)
	if err != nil {
		return nil, err
	}
	u, err := r.api.store.UserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &userResolver{u: u}, nil
}

type packageInput struct {
	ID          graphql.ID
	Name        string
	Avatar      *string
	Description *string
	Stars       *int32
	Status      string
	Board       string
}

func (in packageInput) card() (kanban.Card, error) {
	st := kanban.Status(in.Status)
	if !st.Valid() {
		return kanban.Card{}, fmt.Errorf("package %s: unknown status %q", in.ID, in.Status)
	}
	c := kanban.Card{ID: string(in.ID), Name: in.Name, Status: st, Board: in.Board}
	if in.Avatar != nil {
		c.Avatar = *in.Avatar
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.Stars != nil {
		c.Stars = int(*in.Stars)
	}
	return c, nil
}

func (r *rootResolver) UpdateUserPackages(ctx context.Context, args struct {
	ID       graphql.ID
	Packages []packageInput
}) (*userResolver, error) {
	id, err := r.authorize(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	cards := make(kanban.Cards, 0, len(args.Packages))
	for _, in := range args.Packages {
		c, err := in.card()
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	u, err := r.api.store.ReplacePackages(ctx, id, cards)
	if err != nil {
		r.api.log.Error("replace packages", "user", id, "err", err)
		return nil, errors.New("internal error")
	}
	r.api.log.Info("packages replaced", "user", id, "count", len(u.Packages))
	r.api.bus.Publish(Event{Type: EventPackagesUpdated, UserID: id, Payload: map[string]any{"count": len(u.Packages)}})
	if r.api.snaps != nil {
		if err := r.api.snaps.Snapshot(ctx, u); err != nil {
			r.api.log.Error("snapshot", "user", id, "err", err)
		}
	}
	return &userResolver{u: u}, nil
}

func (r *rootResolver) UpdateUserBoards(ctx context.Context, args struct {
	ID           graphql.ID
	KanbanBoards []string
}) (*userResolver, error) {
	id, err := r.authorize(ctx, args.ID)
	if err != nil {
		return nil, err
	}
	u, err := r.api.store.ReplaceBoards(ctx, id, kanban.NormalizeBoards(args.KanbanBoards))
	if err != nil {
		r.api.log.Error("replace boards", "user", id, "err", err)
		return nil, errors.New("internal error")
	}
	r.api.bus.Publish(Event{Type: EventBoardsUpdated, UserID: id, Payload: map[string]any{"kanban_boards": u.KanbanBoards}})
	return &userResolver{u: u}, nil
}

// authorize checks that the session user owns the target id.
func (r *rootResolver) authorize(ctx context.Context, target graphql.ID) (int64, error) {
	u, ok := userFrom(ctx)
	if !ok {
		return 0, ErrUnauthorized
	}
	id, err := parseUserID(target)
	if err != nil {
		return 0, err
	}
	if id != u.ID {
		return 0, ErrUnauthorized
	}
	return id, nil
}

func parseUserID(id graphql.ID) (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", id)
	}
	return n, nil
}

type userResolver struct {
	u User
}

func (r *userResolver) ID() graphql.ID { return graphql.ID(strconv.FormatInt(r.u.ID, 10)) }
func (r *userResolver) Username() string { return r.u.Username }
func (r *userResolver) Name() string { return r.u.Name }
func (r *userResolver) Avatar() string { return r.u.AvatarURL }
func (r *userResolver) KanbanBoards() []string { return r.u.KanbanBoards }

func (r *userResolver) Packages() []*packageResolver {
	out := make([]*packageResolver, len(r.u.Packages))
	for i, c := range r.u.Packages {
		out[i] = &packageResolver{c: c}
	}
	return out
}

type packageResolver struct {
	c kanban.Card
}

func (r *packageResolver) ID() graphql.ID { return graphql.ID(r.c.ID) }
func (r *packageResolver) Name() string { return r.c.Name }
func (r *packageResolver) Avatar() string { return r.c.Avatar }
func (r *packageResolver) Description() string { return r.c.Description }
func (r *packageResolver) Stars() int32 { return int32(r.c.Stars) }
func (r *packageResolver) Status() string { return string(r.c.Status) }
func (r *packageResolver) Board() string { return r.c.Board }
