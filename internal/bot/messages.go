package bot

import (
	"fmt"
	"math"
	"time"

	"github.com/glebk/skillswap/internal/domain"
	"github.com/glebk/skillswap/internal/service"
)

func describeError(err error) string {
	code, _ := domain.CodeOf(err)
	switch code {
	case domain.CodeOutOfCheckInWindow:
		seconds, _ := domain.SecondsUntilWindowOpens(err)
		if seconds == 0 {
			return "The check-in window has closed."
		}
		return fmt.Sprintf("Too early: check-in opens in %s.", formatDuration(time.Duration(seconds)*time.Second))
	case domain.CodeNotFound:
		return "Session not found."
	case domain.CodeNotParticipant:
		return "You are not a participant of this session."
	case domain.CodeInvalidTransition:
		return "That is not possible right now: " + escape(err.Error())
	case domain.CodeInsufficientCredits:
		return "The student does not have enough available credits."
	case domain.CodeConcurrentModification:
		return "The session is busy, please try again."
	case domain.CodeEscrowInconsistency:
		return "Something is wrong with this session. An operator has been notified."
	}
	return "Something went wrong, please try again later."
}

func describeOutcome(action string, session *domain.Session) string {
	switch action {
	case actionApprove:
		return fmt.Sprintf("*Approved*\n%s credits are held in escrow.", session.CreditAmount)
	case actionCheckIn:
		if session.Status == domain.SessionStatusInProgress {
			return "*Session started*\nBoth of you checked in."
		}
		return "*Checked in*\nWaiting for the other participant."
	case actionConfirm:
		if session.Status == domain.SessionStatusCompleted {
			return fmt.Sprintf("*Session completed*\n%s credits were released to the teacher.", session.CreditAmount)
		}
		return "*Confirmed*\nWaiting for the other participant."
	}
	return fmt.Sprintf("Session is %s.", escape(string(session.Status)))
}

func describeProgress(p *service.SessionProgress) string {
	session := p.Session
	text := fmt.Sprintf("*%s* `%s`\nStatus: %s\nTeacher: %s, student: %s\nCredits: %s",
		escape(session.SkillReference), session.ID, escape(string(session.Status)),
		escape(session.TeacherID), escape(session.StudentID), session.CreditAmount)
	if session.ScheduledAt != nil {
		text += "\nScheduled: " + session.ScheduledAt.UTC().Format("2006-01-02 15:04 UTC")
	}
	if !p.Progress.Started {
		return text + "\nPlanned: " + formatDuration(p.Progress.Planned)
	}

	text += fmt.Sprintf("\nElapsed: %s of %s (%d%%)",
		formatDuration(p.Progress.Elapsed), formatDuration(p.Progress.Planned),
		int(math.Round(p.Progress.Percent*100)))
	if p.Progress.Overtime {
		text += "\nOvertime: " + formatDuration(p.Progress.OvertimeBy)
	}
	return text
}

// formatDuration renders whole minutes, e.g. 1h30m or 45m.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", minutes)
	case minutes == 0:
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
