// 手动触发演示数据重建脚本
//
// 演示轨道在主应用首次启动、库为空时自动插入。
// 此脚本仅用于手动触发，例如清库重建测试环境后。
//
// 用法: go run scripts/reseed_demo.go

package main

import (
	"certlearn_backend/internal/config"
	"certlearn_backend/internal/model"
	"certlearn_backend/pkg/database"
	"certlearn_backend/pkg/logger"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

func main() {
	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	logger.InitLogger(&cfg)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	var count int64
	db.Model(&model.Track{}).Count(&count)
	if count > 0 {
		log.Printf("已存在 %d 条学习轨道，无需重建。清空 tracks 表后重试。", count)
		return
	}

	// InitDB 在空库上已经完成播种
	log.Println("演示数据重建完成！")
}
