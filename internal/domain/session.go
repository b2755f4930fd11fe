package domain

import (
	"sort"
	"strings"
	"time"
)

// CheckJoinable reports whether new players may enter the quiz.
func CheckJoinable(quiz Quiz) error {
	if quiz.Status == QuizFinished {
		return ErrAlreadyFinished
	}
	return nil
}

// NewPlayer builds the record created by a successful join.
func NewPlayer(id string, quiz Quiz, name, avatarID string, now time.Time) Player {
	return Player{
		ID:            id,
		QuizID:        quiz.ID,
		Name:          name,
		AvatarID:      avatarID,
		Status:        PlayerPlaying,
		QuestionIndex: 0,
		JoinedAt:      now,
	}
}

// StartQuiz moves a waiting quiz to active. Player progress is left untouched.
func StartQuiz(quiz Quiz) (Quiz, error) {
	if quiz.Status != QuizWaiting {
		return quiz, ErrInvalidState
	}
	quiz.Status = QuizActive
	quiz.CurrentQuestionIndex = 0
	return quiz, nil
}

// TransitionAllowed reports whether a quiz may move from one status to another.
// Only forward moves are allowed; reset is a separate operation.
func TransitionAllowed(from, to QuizStatus) bool {
	return statusRank(to) > statusRank(from)
}

func statusRank(s QuizStatus) int {
	switch s {
	case QuizWaiting:
		return 0
	case QuizActive:
		return 1
	case QuizFinished:
		return 2
	}
	return -1
}

// JudgeAnswer compares the submission with every accepted answer, ignoring case.
func JudgeAnswer(question Question, text string) bool {
	for _, accepted := range question.CorrectAnswers {
		if strings.EqualFold(accepted, text) {
			return true
		}
	}
	return false
}

// AdvancePlayer moves a player to the next question, or finishes them on the last one.
// A finished player is returned unchanged and reported finished.
func AdvancePlayer(player Player, totalQuestions int) (Player, bool) {
	if player.Status == PlayerFinished {
		return player, true
	}
	if player.QuestionIndex+1 >= totalQuestions {
		player.Status = PlayerFinished
		return player, true
	}
	player.QuestionIndex++
	return player, false
}

// ShouldFinish is the aggregate rule: an active quiz ends once it has players and none is still playing.
func ShouldFinish(quiz Quiz, players []Player) bool {
	if quiz.Status != QuizActive || len(players) == 0 {
		return false
	}
	for _, p := range players {
		if p.QuizID == quiz.ID && p.Status == PlayerPlaying {
			return false
		}
	}
	return true
}

// ComputeScore counts the player's correct answers to questions still in the quiz.
// The denominator is always the quiz's question count.
func ComputeScore(player Player, answers []Answer, questions []Question) Score {
	inQuiz := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		inQuiz[q.ID] = struct{}{}
	}

	correct := 0
	for _, a := range answers {
		if a.PlayerID != player.ID || !a.Correct {
			continue
		}
		if _, ok := inQuiz[a.QuestionID]; ok {
			correct++
		}
	}
	return Score{
		PlayerID: player.ID,
		Name:     player.Name,
		AvatarID: player.AvatarID,
		Status:   player.Status,
		Correct:  correct,
		Total:    len(questions),
	}
}

// BuildLeaderboard scores every player, best first. Ties go to the earlier joiner, then by name.
func BuildLeaderboard(quizID string, players []Player, answers []Answer, questions []Question, now time.Time) Leaderboard {
	byPlayer := make(map[string][]Answer, len(players))
	for _, a := range answers {
		byPlayer[a.PlayerID] = append(byPlayer[a.PlayerID], a)
	}

	joined := make(map[string]time.Time, len(players))
	entries := make([]Score, 0, len(players))
	for _, p := range players {
		joined[p.ID] = p.JoinedAt
		entries = append(entries, ComputeScore(p, byPlayer[p.ID], questions))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Correct != entries[j].Correct {
			return entries[i].Correct > entries[j].Correct
		}
		ji, jj := joined[entries[i].PlayerID], joined[entries[j].PlayerID]
		if !ji.Equal(jj) {
			return ji.Before(jj)
		}
		return entries[i].Name < entries[j].Name
	})

	return Leaderboard{QuizID: quizID, Entries: entries, UpdatedAt: now}
}
