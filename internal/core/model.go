package core

import (
	"time"
)

// Gender is a categorical self-descriptor
type Gender string

// AgeRange is a categorical age bracket
type AgeRange string

// Interest is a single interest tag
type Interest string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

const (
	AgeRange14to16 AgeRange = "range14to16"
	AgeRange17to18 AgeRange = "range17to18"
	AgeRange19to21 AgeRange = "range19to21"
	AgeRange22Plus AgeRange = "range22plus"
)

// Known interest tags
const (
	InterestProgramming Interest = "programming"
	InterestMusic       Interest = "music"
	InterestSports      Interest = "sports"
	InterestArt         Interest = "art"
	InterestGaming      Interest = "gaming"
	InterestReading     Interest = "reading"
	InterestCooking     Interest = "cooking"
	InterestTravel      Interest = "travel"
	InterestPhotography Interest = "photography"
	InterestFilms       Interest = "films"
	InterestScience     Interest = "science"
	InterestLanguages   Interest = "languages"
)

// Profile is a registered user as seen by the matching engine.
// An empty WantGender or WantAgeRange means "any".
type Profile struct {
	ID            string
	ContactID     string
	Name          string
	AvatarPath    string
	SelfInterests []Interest
	SelfGender    Gender
	SelfAgeRange  AgeRange
	WantInterests []Interest
	WantGender    Gender
	WantAgeRange  AgeRange
	LastMatchedAt *time.Time
}

// Candidate is a profile with a resolved deliverable address
type Candidate struct {
	Profile
	Address string
}

// Pair is two candidates introduced to each other in one run
type Pair struct {
	A         Candidate
	B         Candidate
	Score     int
	MatchedAt time.Time
}

// PairRecord is the persisted form of a pair
type PairRecord struct {
	ID         string
	RunID      string
	ProfileAID string
	ProfileBID string
	Score      int
	MatchedAt  time.Time
}

// MatchSummary is one entry of a profile's match history, seen from that profile
type MatchSummary struct {
	PairID    string
	RunID     string
	MatchedAt time.Time
	Partner   Profile
}

// MatchCard describes the match inside a notification
type MatchCard struct {
	ProfileID  string
	Name       string
	AvatarPath string
	Gender     Gender
	AgeRange   AgeRange
	Interests  []Interest
}

// Notification is one directional "you have a match" message
type Notification struct {
	RunID            string
	RecipientID      string
	RecipientAddress string
	RecipientName    string
	Match            MatchCard
	Intro            string
}

// RunResult summarizes one matching run
type RunResult struct {
	RunID             string
	PairsCreated      int
	NotificationsSent int
	Errors            []string
	Message           string
}
