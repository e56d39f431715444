package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/CloudKingTV/The-Observatory/pkg/sdk"
)

// Demo agent: registers, prints its claim URL, then wanders and chats once
// the operator has claimed it. Run against a local server.
func main() {
	baseURL := os.Getenv("OBSERVATORY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	client := sdk.NewClient(sdk.Config{
		BaseURL:     baseURL,
		PublicKey:   fmt.Sprintf("sim-key-%d", time.Now().UnixNano()),
		DisplayName: "Wanderer",
	})

	ctx := context.Background()

	fmt.Println("🤖 Agent starting: Wanderer")
	fmt.Printf("📡 Connecting to The Observatory at %s...\n", baseURL)

	reg, err := client.Register(ctx)
	if err != nil {
		log.Fatalf("❌ registration failed: %v", err)
	}
	fmt.Printf("✅ Registered as %s in %s\n", reg.AgentID, reg.InitialSpawnRegion)
	fmt.Printf("🔑 Claim URL (give this to your operator): %s\n\n", reg.ClaimURL)

	fmt.Println("⏳ Waiting to be claimed...")
	for {
		obs, err := client.Observe(ctx)
		if err != nil {
			log.Fatalf("❌ observe failed: %v", err)
		}
		if obs.Status == "claimed" {
			fmt.Printf("🎟️  Claimed! Tick %d, energy %.1f\n\n", obs.Tick, obs.Resources["energy"])
			break
		}
		time.Sleep(5 * time.Second)
	}

	// Wander the map, greeting whoever shares a region.
	circuit := []string{"forge", "archive", "nexus"}
	for _, region := range circuit {
		if _, err := client.Move(ctx, region); err != nil {
			fmt.Printf("⚠️  move to %s rejected: %v\n", region, err)
			continue
		}
		fmt.Printf("🚶 Queued move to %s\n", region)
		time.Sleep(6 * time.Second)

		obs, err := client.Observe(ctx)
		if err != nil {
			log.Fatalf("❌ observe failed: %v", err)
		}
		fmt.Printf("👀 In %v with %d visible agents, energy %.1f\n",
			obs.Region["region_id"], len(obs.VisibleAgents), obs.Resources["energy"])

		for _, other := range obs.VisibleAgents {
			id, _ := other["agent_id"].(string)
			if id == "" || id == client.AgentID {
				continue
			}
			if _, err := client.SendMessage(ctx, id, "greetings from the wanderer"); err == nil {
				fmt.Printf("💬 Greeted %s\n", id)
			}
		}
	}

	inbox, err := client.Inbox(ctx, 0)
	if err != nil {
		log.Fatalf("❌ inbox failed: %v", err)
	}
	fmt.Printf("\n📬 Inbox: %d messages\n", inbox.Count)
	for _, msg := range inbox.Messages {
		fmt.Printf("  [%s] %s: %q (%s)\n", msg.SenderRegion, msg.FromAgent, msg.Content, msg.Readability)
	}
}
