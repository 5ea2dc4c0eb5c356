// Package deck builds review decks: it filters a user's cards, draws them
// from the due, new and difficult pools according to a Mode, and shuffles the
// result. Run then walks a deck during a study session.
package deck
