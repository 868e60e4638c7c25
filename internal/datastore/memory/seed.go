package memory

import (
	"context"

	"local.dev/postboard/internal/datastore"
)

// SeedIfEmpty writes a few demo posts, each with a comment, into an empty store.
func (s *Store) SeedIfEmpty(ctx context.Context) error {
	if s.Len(datastore.CollectionPosts) > 0 {
		return nil
	}

	seed := []struct {
		userID, author, title, content, comment string
	}{
		{
			userID:  "demo_bob",
			author:  "Bob",
			title:   "Card corners fixed",
			content: "Finally fixed the rounded corners on the feed cards. Layout looks much cleaner now.",
			comment: "Looks great!",
		},
		{
			userID:  "demo_alice",
			author:  "Alice",
			title:   "Hello there",
			content: "My first post. I plan to keep notes on my photocard collection here.",
			comment: "Welcome aboard.",
		},
		{
			userID:  "demo_alice",
			author:  "Alice",
			title:   "Album wall",
			content: "Photographed every album cover on the shelf. Scrolling through feels like a tiny gallery.",
			comment: "Share a picture next time?",
		},
	}

	for i, p := range seed {
		id, err := s.CreateDocument(ctx, datastore.CollectionPosts, map[string]interface{}{
			"userId":    p.userID,
			"author":    p.author,
			"title":     p.title,
			"content":   p.content,
			"imageUrl":  nil,
			"createdAt": datastore.ServerTimestamp,
		})
		if err != nil {
			return err
		}
		commenter := seed[(i+1)%len(seed)].author
		if _, err := s.CreateDocument(ctx, datastore.CommentsCollection(id), map[string]interface{}{
			"postId":    id,
			"author":    commenter,
			"content":   p.comment,
			"createdAt": datastore.ServerTimestamp,
		}); err != nil {
			return err
		}
	}
	return nil
}
