// Command take-exam runs a timed exam attempt in the terminal against the
// exam service API.
//
//	EXSTEM_TOKEN=... EXSTEM_TENANT=sman1 take-exam -exam <uuid>
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/attempt"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/examclient"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"golang.org/x/term"
)

type expiredResult struct {
	ack *model.SubmitAck
	err error
}

func main() {
	var examArg string
	flag.StringVar(&examArg, "exam", "", "Exam ID to take")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.LoadClient()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.SetupTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	if examArg == "" {
		fmt.Print("Exam ID: ")
		examArg, _ = reader.ReadString('\n')
		examArg = strings.TrimSpace(examArg)
	}
	examID, err := uuid.Parse(examArg)
	if err != nil {
		fmt.Println("Error: exam ID must be a UUID")
		os.Exit(2)
	}

	if cfg.Tenant == "" {
		fmt.Print("Tenant (school code): ")
		cfg.Tenant, _ = reader.ReadString('\n')
		cfg.Tenant = strings.TrimSpace(cfg.Tenant)
	}

	if cfg.Token == "" {
		fmt.Print("Access token: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			fmt.Println("Error reading token")
			os.Exit(1)
		}
		cfg.Token = strings.TrimSpace(string(raw))
	}
	if cfg.Token == "" || cfg.Tenant == "" {
		fmt.Println("Error: token and tenant are required")
		os.Exit(2)
	}

	// ─── Start Attempt ─────────────────────────────────────────────────
	client := examclient.New(cfg.APIURL, cfg.Token, cfg.Tenant, examclient.WithLogger(log))
	expired := make(chan expiredResult, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	session, err := attempt.Load(ctx, client, examID,
		attempt.WithLogger(log),
		attempt.WithTickObserver(announceRemaining),
		attempt.WithSubmitObserver(func(ack *model.SubmitAck, err error) {
			expired <- expiredResult{ack: ack, err: err}
		}),
	)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, attempt.ErrExamClosed):
			fmt.Println("Ujian sudah ditutup.")
		case errors.Is(err, attempt.ErrExamNotStarted):
			fmt.Println("Ujian belum dimulai.")
		case errors.Is(err, attempt.ErrAlreadySubmitted):
			fmt.Println("Ujian sudah dikumpulkan.")
		default:
			fmt.Printf("Gagal memuat ujian: %v\n", err)
		}
		os.Exit(1)
	}
	defer session.Close()

	exam := session.Exam()
	fmt.Printf("\n=== %s (%s) ===\n", exam.Title, exam.SubjectName)
	fmt.Printf("%d soal, sisa waktu %s\n", len(exam.Questions), formatRemaining(session.Remaining()))
	printHelp()
	printQuestions(session)

	// ─── Command Loop ──────────────────────────────────────────────────
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case res := <-expired:
			fmt.Println("\nWaktu habis.")
			if res.err != nil {
				fmt.Printf("Pengiriman otomatis gagal: %v\n", res.err)
				fmt.Println("Ketik \"submit\" untuk mencoba lagi.")
				continue
			}
			printAck(res.ack)
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := runCommand(session, strings.Fields(line)); done {
				return
			}
		}
	}
}

// runCommand reports whether the program should exit.
func runCommand(session *attempt.Session, fields []string) bool {
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "help", "?":
		printHelp()
	case "list", "show":
		printQuestions(session)
	case "time":
		fmt.Printf("Sisa waktu %s\n", formatRemaining(session.Remaining()))
	case "submit":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		ack, err := session.Submit(ctx, attempt.UserInitiated)
		cancel()
		switch {
		case err == nil:
			printAck(ack)
			return true
		case errors.Is(err, attempt.ErrAlreadySubmitted):
			if ack, ok := session.Result(); ok {
				printAck(ack)
			}
			return true
		case errors.Is(err, attempt.ErrSubmissionInFlight):
			fmt.Println("Pengiriman sedang diproses...")
		default:
			fmt.Printf("Gagal mengirim: %v\nKetik \"submit\" untuk mencoba lagi.\n", err)
		}
	case "quit", "exit":
		if session.Phase() == attempt.PhaseInProgress {
			fmt.Println("Jawaban belum dikirim. Ketik \"submit\" dulu, atau \"quit!\" untuk keluar.")
			return false
		}
		return true
	case "quit!":
		return true
	default:
		if len(fields) != 2 {
			fmt.Println("Perintah tidak dikenal. Ketik \"help\".")
			return false
		}
		selectAnswer(session, fields[0], fields[1])
	}
	return false
}

func selectAnswer(session *attempt.Session, numArg, optArg string) {
	questions := session.Exam().Questions
	n, err := strconv.Atoi(numArg)
	if err != nil || n < 1 || n > len(questions) {
		fmt.Printf("Nomor soal harus 1-%d\n", len(questions))
		return
	}
	opt, ok := parseOption(optArg)
	if !ok {
		fmt.Println("Pilihan harus huruf (A, B, ...) atau angka (1, 2, ...)")
		return
	}

	q := questions[n-1]
	switch err := session.SelectOption(q.ID, opt); {
	case err == nil:
		fmt.Printf("Soal %d: %s\n", n, optionLabel(opt))
	case errors.Is(err, attempt.ErrInvalidOption):
		fmt.Printf("Soal %d hanya punya %d pilihan\n", n, len(q.Options))
	default:
		fmt.Printf("Jawaban tidak disimpan: %v\n", err)
	}
}

// parseOption accepts "B" or "2" for the second option.
func parseOption(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n - 1, n >= 1
	}
	if len(s) == 1 {
		c := strings.ToUpper(s)[0]
		if c >= 'A' && c <= 'Z' {
			return int(c - 'A'), true
		}
	}
	return 0, false
}

func optionLabel(idx int) string {
	if idx >= 0 && idx < 26 {
		return string(rune('A' + idx))
	}
	return strconv.Itoa(idx + 1)
}

func printHelp() {
	fmt.Println("Perintah: <no> <pilihan> (mis. \"3 B\"), list, time, submit, quit")
}

func printQuestions(session *attempt.Session) {
	answers := session.Answers()
	for i, q := range session.Exam().Questions {
		mark := " "
		if _, ok := answers[q.ID]; ok {
			mark = "*"
		}
		fmt.Printf("\n%s %d. %s\n", mark, i+1, q.Text)
		for j, opt := range q.Options {
			sel := " "
			if chosen, ok := answers[q.ID]; ok && chosen == j {
				sel = ">"
			}
			fmt.Printf("   %s %s. %s\n", sel, optionLabel(j), opt)
		}
	}
	fmt.Printf("\nTerjawab %d dari %d\n", len(answers), len(session.Exam().Questions))
}

func printAck(ack *model.SubmitAck) {
	if ack == nil {
		return
	}
	fmt.Println("\nJawaban berhasil dikirim.")
	fmt.Printf("  ID pengiriman : %s\n", ack.SubmissionID)
	fmt.Printf("  Terjawab      : %d\n", ack.Answered)
	fmt.Printf("  Nilai         : %.2f / %.2f\n", ack.Score, ack.MaxScore)
	fmt.Printf("  Waktu         : %s\n", ack.SubmittedAt.Local().Format("02/01/2006 15:04:05"))
}

// announceRemaining prints at each full minute below ten minutes and every
// second of the last ten.
func announceRemaining(remaining int) {
	if remaining <= 10 || (remaining <= 600 && remaining%60 == 0) {
		fmt.Fprintf(os.Stderr, "\r[sisa waktu %s] ", formatRemaining(remaining))
	}
}

func formatRemaining(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
