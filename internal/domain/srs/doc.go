// Package srs implements the SM-2 variant that decides how long until a card
// is reviewed again. Everything here is a pure function of the card, the
// review outcome and the supplied time.
package srs
