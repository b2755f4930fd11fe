package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"festive-quiz-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Open returns a bun handle for the given DSN. The connection is lazy.
func Open(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Store implements app.Store on Postgres. Steps that touch several rows of a
// quiz lock the quiz row first so they serialize against each other.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	row := fromQuiz(quiz)
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return domain.Quiz{}, mapErr("create quiz", err, domain.ErrQuizNotFound)
	}
	return s.GetQuiz(ctx, quiz.ID)
}

func (s *Store) GetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	var row quizRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Quiz{}, mapErr("get quiz", err, domain.ErrQuizNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) GetQuizByCode(ctx context.Context, code string) (domain.Quiz, error) {
	var row quizRow
	if err := s.db.NewSelect().Model(&row).Where("join_code = ?", code).Scan(ctx); err != nil {
		return domain.Quiz{}, mapErr("get quiz by code", err, domain.ErrQuizNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, error) {
	var rows []quizRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("created_at DESC, id ASC")
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapErr("list quizzes", err, domain.ErrQuizNotFound)
	}
	out := make([]domain.Quiz, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) RenameQuiz(ctx context.Context, id, title string) (domain.Quiz, error) {
	var row quizRow
	err := s.db.NewUpdate().Model(&row).
		Set("title = ?", title).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Quiz{}, mapErr("rename quiz", err, domain.ErrQuizNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) TransitionQuiz(ctx context.Context, id string, from, to domain.QuizStatus) (domain.Quiz, error) {
	var row quizRow
	err := s.db.NewUpdate().Model(&row).
		Set("status = ?", string(to)).
		Where("id = ?", id).
		Where("status = ?", string(from)).
		Returning("*").
		Scan(ctx)
	if err == nil {
		return row.toDomain(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, mapErr("transition quiz", err, domain.ErrQuizNotFound)
	}
	current, err := s.GetQuiz(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	return current, domain.ErrInvalidState
}

func (s *Store) DeleteQuiz(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*quizRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return mapErr("delete quiz", err, domain.ErrQuizNotFound)
	}
	return requireAffected(res, domain.ErrQuizNotFound)
}

func (s *Store) ResetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	var out domain.Quiz
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := lockQuiz(ctx, tx, id); err != nil {
			return err
		}
		// answers go with their players
		if _, err := tx.NewDelete().Model((*playerRow)(nil)).Where("quiz_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		var row quizRow
		err := tx.NewUpdate().Model(&row).
			Set("status = ?", string(domain.QuizWaiting)).
			Set("current_question_index = 0").
			Where("id = ?", id).
			Returning("*").
			Scan(ctx)
		if err != nil {
			return err
		}
		out = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Quiz{}, mapErr("reset quiz", err, domain.ErrQuizNotFound)
	}
	return out, nil
}

func (s *Store) CreateQuestion(ctx context.Context, question domain.Question) (domain.Question, error) {
	row := fromQuestion(question)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return domain.Question{}, mapErr("create question", err, domain.ErrQuestionNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	var row questionRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Question{}, mapErr("get question", err, domain.ErrQuestionNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) ListQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var rows []questionRow
	err := s.db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		OrderExpr("order_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapErr("list questions", err, domain.ErrQuestionNotFound)
	}
	out := make([]domain.Question, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) SetQuestionOrder(ctx context.Context, id string, orderIndex int) (domain.Question, error) {
	var row questionRow
	err := s.db.NewUpdate().Model(&row).
		Set("order_index = ?", orderIndex).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Question{}, mapErr("set question order", err, domain.ErrQuestionNotFound)
	}
	return row.toDomain(), nil
}

// SwapQuestionOrder exchanges order indexes in one statement; the unique
// constraint on (quiz_id, order_index) is deferrable, so it is checked after
// both rows changed.
func (s *Store) SwapQuestionOrder(ctx context.Context, firstID, secondID string) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []questionRow
		err := tx.NewSelect().Model(&rows).
			Where("id IN (?)", bun.In([]string{firstID, secondID})).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return err
		}
		byID := make(map[string]questionRow, len(rows))
		for _, r := range rows {
			byID[r.ID] = r
		}
		a, okA := byID[firstID]
		b, okB := byID[secondID]
		if !okA || !okB {
			return domain.ErrQuestionNotFound
		}
		if a.QuizID != b.QuizID {
			return domain.ErrInvalidState
		}
		_, err = tx.NewUpdate().Model((*questionRow)(nil)).
			Set("order_index = CASE WHEN id = ? THEN ?::int ELSE ?::int END", a.ID, b.OrderIndex, a.OrderIndex).
			Where("id IN (?)", bun.In([]string{a.ID, b.ID})).
			Exec(ctx)
		return err
	})
	return mapErr("swap question order", err, domain.ErrQuestionNotFound)
}

func (s *Store) DeleteQuestion(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*questionRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return mapErr("delete question", err, domain.ErrQuestionNotFound)
	}
	return requireAffected(res, domain.ErrQuestionNotFound)
}

func (s *Store) CreatePlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	var out domain.Player
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var existing playerRow
		err := tx.NewSelect().Model(&existing).Where("id = ?", player.ID).Scan(ctx)
		if err == nil {
			out = existing.toDomain()
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		quiz, err := lockQuiz(ctx, tx, player.QuizID)
		if err != nil {
			return err
		}
		if err := domain.CheckJoinable(quiz.toDomain()); err != nil {
			return err
		}
		row := fromPlayer(player)
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return err
		}
		out = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Player{}, mapErr("create player", err, domain.ErrQuizNotFound)
	}
	return out, nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (domain.Player, error) {
	var row playerRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Player{}, mapErr("get player", err, domain.ErrPlayerNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) ListPlayers(ctx context.Context, quizID string) ([]domain.Player, error) {
	rows, err := listPlayers(ctx, s.db, quizID)
	if err != nil {
		return nil, mapErr("list players", err, domain.ErrPlayerNotFound)
	}
	return playersToDomain(rows), nil
}

func (s *Store) SetPlayerIndex(ctx context.Context, id string, index int) (domain.Player, error) {
	var row playerRow
	err := s.db.NewUpdate().Model(&row).
		Set("current_question_index = ?", index).
		Where("id = ?", id).
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Player{}, mapErr("set player index", err, domain.ErrPlayerNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) FinishPlayer(ctx context.Context, id string) (domain.FinishResult, error) {
	var out domain.FinishResult
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var player playerRow
		if err := tx.NewSelect().Model(&player).Where("id = ?", id).Scan(ctx); err != nil {
			return err
		}
		quiz, err := lockQuiz(ctx, tx, player.QuizID)
		if err != nil {
			return err
		}
		err = tx.NewUpdate().Model(&player).
			Set("status = ?", string(domain.PlayerFinished)).
			Where("id = ?", id).
			Returning("*").
			Scan(ctx)
		if err != nil {
			return err
		}
		closed, err := closeIfDone(ctx, tx, quiz)
		if err != nil {
			return err
		}
		out = domain.FinishResult{Player: player.toDomain(), QuizFinished: closed}
		return nil
	})
	if err != nil {
		return domain.FinishResult{}, mapErr("finish player", err, domain.ErrPlayerNotFound)
	}
	return out, nil
}

func (s *Store) CloseIfDone(ctx context.Context, quizID string) (bool, error) {
	var closed bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		quiz, err := lockQuiz(ctx, tx, quizID)
		if err != nil {
			return err
		}
		closed, err = closeIfDone(ctx, tx, quiz)
		return err
	})
	if err != nil {
		return false, mapErr("close quiz", err, domain.ErrQuizNotFound)
	}
	return closed, nil
}

// UpsertAnswer keeps one row per (player, question); a resubmission replaces
// the text and verdict but keeps the row id.
func (s *Store) UpsertAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error) {
	row := fromAnswer(answer)
	err := s.db.NewInsert().Model(&row).
		On("CONFLICT (player_id, question_id) DO UPDATE").
		Set("answer_text = EXCLUDED.answer_text").
		Set("is_correct = EXCLUDED.is_correct").
		Set("answered_at = EXCLUDED.answered_at").
		Returning("*").
		Scan(ctx)
	if err != nil {
		return domain.Answer{}, mapErr("upsert answer", err, domain.ErrNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) ListAnswers(ctx context.Context, filter domain.AnswerFilter) ([]domain.Answer, error) {
	var rows []answerRow
	q := s.db.NewSelect().Model(&rows).OrderExpr("a.answered_at ASC, a.id ASC")
	if filter.PlayerID != "" {
		q = q.Where("a.player_id = ?", filter.PlayerID)
	}
	if filter.QuizID != "" {
		q = q.Join("JOIN players AS p ON p.id = a.player_id").Where("p.quiz_id = ?", filter.QuizID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapErr("list answers", err, domain.ErrNotFound)
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func lockQuiz(ctx context.Context, db bun.IDB, id string) (quizRow, error) {
	var row quizRow
	err := db.NewSelect().Model(&row).Where("id = ?", id).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return quizRow{}, domain.ErrQuizNotFound
	}
	return row, err
}

func listPlayers(ctx context.Context, db bun.IDB, quizID string) ([]playerRow, error) {
	var rows []playerRow
	err := db.NewSelect().Model(&rows).
		Where("quiz_id = ?", quizID).
		OrderExpr("joined_at ASC, id ASC").
		Scan(ctx)
	return rows, err
}

// closeIfDone must run with the quiz row locked.
func closeIfDone(ctx context.Context, tx bun.Tx, quiz quizRow) (bool, error) {
	players, err := listPlayers(ctx, tx, quiz.ID)
	if err != nil {
		return false, err
	}
	if !domain.ShouldFinish(quiz.toDomain(), playersToDomain(players)) {
		return false, nil
	}
	_, err = tx.NewUpdate().Model((*quizRow)(nil)).
		Set("status = ?", string(domain.QuizFinished)).
		Where("id = ?", quiz.ID).
		Exec(ctx)
	return err == nil, err
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Unavailable("rows affected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// mapErr translates driver errors into domain errors. Domain errors returned
// from inside a transaction pass through unchanged.
func mapErr(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	for _, known := range []error{
		domain.ErrNotFound,
		domain.ErrAlreadyFinished,
		domain.ErrInvalidState,
		domain.ErrInvalidInput,
		domain.ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case "23505": // unique_violation
			switch pgErr.Field('n') {
			case "quizzes_join_code_key":
				return domain.ErrJoinCodeTaken
			case "questions_quiz_order_key":
				return domain.ErrOrderTaken
			}
			return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidState, pgErr.Field('M'))
		case "23503": // foreign_key_violation
			switch pgErr.Field('n') {
			case "answers_player_id_fkey":
				return domain.ErrPlayerNotFound
			case "answers_question_id_fkey":
				return domain.ErrQuestionNotFound
			case "questions_quiz_id_fkey", "players_quiz_id_fkey":
				return domain.ErrQuizNotFound
			}
			return fmt.Errorf("%s: %w", op, notFound)
		case "23514", "22P02": // check_violation, invalid_text_representation
			return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidInput, pgErr.Field('M'))
		}
	}
	return domain.Unavailable(op, err)
}
