package main

// Provider blank imports. Each import activates a self-registering notifier;
// add new providers here as they are implemented.

import (
	_ "github.com/deckhand-ai/deckhand/internal/adapter/discord"
	_ "github.com/deckhand-ai/deckhand/internal/adapter/slack"
)
