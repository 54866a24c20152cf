package main

import (
	"fmt"

	cl "tally/internal/cli"
	"tally/internal/ledger"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	warn    = color.New(color.FgYellow, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printNeutral(msg string) {
	neutral.Println(msg)
}

// money renders a signed amount the way the bot does: -$12.50 / $12.50.
func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

func printBalance(userID int64, balance float64) {
	c := success
	if balance < 0 {
		c = danger
	}
	c.Printf("user %d: %s\n", userID, money(balance))
}

func printBalanceLeaderboard(rows []cl.BalanceRow) {
	if len(rows) == 0 {
		printWarn("the leaderboard is empty")
		return
	}
	accent.Println("rank  balance      user")
	for i, row := range rows {
		name := row.DisplayName
		if name == "" {
			name = fmt.Sprintf("User %d", row.UserID)
		}
		neutral.Printf("%-5d %-12s %s\n", i+1, money(row.Balance), name)
	}
}

func printGamesLeaderboard(rows []cl.GamesRow) {
	if len(rows) == 0 {
		printWarn("no games recorded yet")
		return
	}
	accent.Println("rank  games  user")
	for i, row := range rows {
		name := row.DisplayName
		if name == "" {
			name = fmt.Sprintf("User %d", row.UserID)
		}
		neutral.Printf("%-5d %-6d %s\n", i+1, row.Games, name)
	}
}

func printExcess(total float64) {
	switch {
	case total > ledger.Epsilon:
		danger.Printf("excess %s, money needs to be removed among users\n", money(total))
	case total < -ledger.Epsilon:
		danger.Printf("excess %s, money needs to be added among users\n", money(total))
	default:
		success.Println("users are perfectly balanced, as all things should be")
	}
}

func printHistory(users []ledger.UserHistory) {
	for _, u := range users {
		accent.Printf("user %d (%d points)\n", u.UserID, len(u.Points))
		for _, p := range u.Points {
			neutral.Printf("  %-14s %s\n", p.Label, money(p.Balance))
		}
	}
}
