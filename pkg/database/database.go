package database

import (
	"encoding/json"
	"fmt"
	"log"

	"certlearn_backend/internal/config"
	"certlearn_backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.Track{},
		&model.TrackModule{},
		&model.Lesson{},
		&model.Stage{},
		&model.Checkpoint{},
		&model.CheckpointChoice{},
		&model.UserProgress{},
		&model.Flashcard{},
		&model.QuizBank{},
		&model.QuizBankQuestion{},
		&model.QuizResult{},
		&model.Certificate{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	seedDemoTrack(db)

	return db, nil
}

// seedDemoTrack 空库时插入一条演示学习轨道，方便前端联调
func seedDemoTrack(db *gorm.DB) {
	var count int64
	db.Model(&model.Track{}).Count(&count)
	if count > 0 {
		return
	}

	track := &model.Track{Title: "C语言认证入门", Description: "演示用认证轨道", Order: 1, Published: true}
	if err := db.Create(track).Error; err != nil {
		return
	}

	mod := &model.TrackModule{TrackID: track.ID, Title: "基础语法", Order: 1}
	db.Create(mod)

	lesson := &model.Lesson{ModuleID: mod.ID, Title: "变量与类型", Content: "变量声明、基本类型与初始化。", Order: 1}
	db.Create(lesson)

	stage := &model.Stage{LessonID: lesson.ID, Title: "阅读与确认", Order: 1, GateMode: model.GateRequireAll}
	db.Create(stage)

	ack := &model.Checkpoint{StageID: stage.ID, Kind: model.CheckpointAck, Prompt: "确认已阅读本课内容", Order: 1}
	db.Create(ack)

	keys, _ := json.Marshal([]string{"int"})
	short := &model.Checkpoint{
		StageID:    stage.ID,
		Kind:       model.CheckpointShortAnswer,
		Prompt:     "C 中最常用的整数类型是什么？",
		Order:      2,
		AnswerKeys: keys,
	}
	db.Create(short)

	quizStage := &model.Stage{LessonID: lesson.ID, Title: "小测", Order: 2, GateMode: model.GateMinPassed, MinPassed: 1}
	db.Create(quizStage)

	quiz := &model.Checkpoint{StageID: quizStage.ID, Kind: model.CheckpointQuiz, Prompt: "以下哪个是合法的变量名？", Order: 1}
	db.Create(quiz)
	db.Create(&model.CheckpointChoice{CheckpointID: quiz.ID, Text: "my_var", Correct: true, Order: 1})
	db.Create(&model.CheckpointChoice{CheckpointID: quiz.ID, Text: "2var", Order: 2})
	db.Create(&model.CheckpointChoice{CheckpointID: quiz.ID, Text: "int", Order: 3})
}
