package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

// 临时排查工具：直接列出 active_calls 表内容，核对监控器落库情况
func main() {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		parseInt(getEnv("DB_PORT", "5432"), 5432),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "carecall"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	query := `
		SELECT site_id, room_key, call_type, priority, start_time, event_id, display_text
		FROM active_calls
		ORDER BY site_id, start_time;
	`

	rows, err := db.Query(query)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	defer rows.Close()

	fmt.Printf("%-12s %-28s %-12s %-8s %-25s %-20s %s\n",
		"site_id", "room_key", "call_type", "priority", "start_time", "event_id", "display_text")

	var count int
	for rows.Next() {
		var siteID, roomKey, callType, displayText string
		var priority int
		var startTime time.Time
		var eventID sql.NullString

		if err := rows.Scan(&siteID, &roomKey, &callType, &priority, &startTime, &eventID, &displayText); err != nil {
			log.Printf("Failed to scan row: %v", err)
			continue
		}

		fmt.Printf("%-12s %-28s %-12s %-8d %-25s %-20s %s\n",
			siteID, roomKey, callType, priority,
			startTime.Format(time.RFC3339), eventID.String, displayText)
		count++
	}

	fmt.Printf("\ntotal: %d active calls\n", count)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
