package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

type seedQuestion struct {
	text    string
	options []string
	correct int
	marks   float64
}

var bank = []seedQuestion{
	{"Satuan SI untuk gaya adalah ...", []string{"Joule", "Newton", "Watt", "Pascal"}, 1, 2},
	{"Hukum Newton I dikenal juga sebagai hukum ...", []string{"Aksi-reaksi", "Gravitasi", "Kelembaman", "Kekekalan energi"}, 2, 2},
	{"Energi kinetik benda bermassa 2 kg yang bergerak 3 m/s adalah ...", []string{"6 J", "9 J", "12 J", "18 J"}, 1, 3},
	{"Besaran berikut yang termasuk besaran vektor adalah ...", []string{"Massa", "Waktu", "Kecepatan", "Suhu"}, 2, 2},
	{"Percepatan gravitasi bumi mendekati ...", []string{"8,9 m/s²", "9,8 m/s²", "10,8 m/s²", "98 m/s²"}, 1, 1},
	{"Daya adalah usaha per satuan ...", []string{"Massa", "Jarak", "Waktu", "Gaya"}, 2, 2},
	{"Alat untuk mengukur kuat arus listrik adalah ...", []string{"Voltmeter", "Amperemeter", "Ohmmeter", "Termometer"}, 1, 1},
	{"Benda jatuh bebas dari ketinggian 20 m (g = 10 m/s²) menyentuh tanah setelah ...", []string{"1 s", "2 s", "4 s", "20 s"}, 1, 3},
	{"Satuan tekanan dalam SI adalah ...", []string{"Pascal", "Bar", "Atm", "mmHg"}, 0, 1},
	{"Momentum adalah hasil kali massa dan ...", []string{"Percepatan", "Gaya", "Kecepatan", "Waktu"}, 2, 3},
}

func main() {
	tenant := flag.String("tenant", "sman1", "tenant (school) that owns the exam")
	title := flag.String("title", "Latihan Fisika Dasar", "exam title")
	startIn := flag.Duration("start-in", 0, "delay before the exam window opens")
	window := flag.Duration("window", 3*time.Hour, "length of the exam window")
	duration := flag.Int("duration", 45, "attempt allowance in minutes")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)

	start := time.Now().Add(*startIn).Truncate(time.Minute)
	exam := &model.Exam{
		TenantID:        *tenant,
		Title:           *title,
		SubjectName:     "Fisika",
		DurationMinutes: *duration,
		StartTime:       start,
		EndTime:         start.Add(*window),
		Status:          model.ExamStatusPublished,
	}
	for _, q := range bank {
		exam.Questions = append(exam.Questions, model.Question{
			Text:          q.text,
			Options:       q.options,
			CorrectOption: q.correct,
			Marks:         q.marks,
		})
	}

	fmt.Printf("=== Seeding exam %q for tenant %s ===\n", exam.Title, exam.TenantID)
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}

	fmt.Printf("\nSeed completed! Exam ID: %s\n", exam.ID)
	fmt.Printf("Window: %s - %s, %d minutes per attempt, %d questions.\n",
		exam.StartTime.Format(time.DateTime), exam.EndTime.Format(time.DateTime), exam.DurationMinutes, len(exam.Questions))
}
