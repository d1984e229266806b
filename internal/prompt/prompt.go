// Package prompt renders the natural-language prompts sent to the
// completion API. Every function is pure: identical inputs always produce
// an identical prompt.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/tailorreach/internal/model"
)

// ScoringSystem frames every interest-scoring request.
const ScoringSystem = `You are a sales analyst estimating how likely a customer is to be interested in an offer.
Always begin your answer with a single percentage between 0 and 100, then give your reasoning.`

// MessageSystem frames message drafting.
const MessageSystem = "You are an expert in generating personalized customer messages that match specific writing styles and professional levels while maintaining context from previous interactions."

// StyleSystem asks for a JSON summary of the seller's communication style.
const StyleSystem = `Analyze the user's communication style from their messages and provide a concise summary in JSON format with the following keys: tone (formal/casual/mixed), verbosity (concise/moderate/detailed), technicality (basic/intermediate/advanced), engagement (passive/active/very active). Respond only with the JSON object.`

// UnknownProfession is used when the onboarding chat carries no profession.
const UnknownProfession = "unknown"

// Persona is the system prompt for the onboarding chat, where the model
// plays a prospective customer of the seller.
func Persona(profession string) string {
	if strings.TrimSpace(profession) == "" {
		profession = UnknownProfession
	}
	return fmt.Sprintf("You are THE CUSTOMER. The user's profession is %s. Engage in brief conversations as if you are the customer trying to buy a product related to their profession. Inquire about the product, ask for a demo, and ask about the price.", profession)
}

// or returns v, or fallback when v is blank.
func or(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// Product renders the interest prompt for one customer and one product.
func Product(c model.Customer, p model.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer name: %s\n", c.Name)
	fmt.Fprintf(&b, "Email: %s\n", c.Email)
	fmt.Fprintf(&b, "Phone: %s\n", c.Phone)
	fmt.Fprintf(&b, "Likes: %s\n", or(c.Likes, "None"))
	fmt.Fprintf(&b, "Dislikes: %s\n\n", or(c.Dislikes, "None"))

	fmt.Fprintf(&b, "Product: %s\n", p.Name)
	fmt.Fprintf(&b, "Category: %s\n", p.Category)
	fmt.Fprintf(&b, "Description: %s\n\n", or(p.Description, "Not provided"))

	b.WriteString("Based on the customer's likes, and dislikes, assess the likelihood (as a percentage) that they would be interested in purchasing this product and provide the main reason. ")
	b.WriteString("Make sure the reason is 3 sentences. ")
	b.WriteString("If the same people are given for the same product, don't change the answer.")
	return b.String()
}

// Campaign renders the interest prompt for one customer and one campaign.
// p is the campaign's related product and may be nil.
func Campaign(c model.Customer, camp model.Campaign, p *model.Product) string {
	var b strings.Builder
	b.WriteString("Analyze the likelihood of customer interest in a marketing campaign.\n\n")

	b.WriteString("Customer Profile:\n")
	fmt.Fprintf(&b, "- Name: %s\n", c.Name)
	fmt.Fprintf(&b, "- Interests/Likes: %s\n", or(c.Likes, "None specified"))
	fmt.Fprintf(&b, "- Dislikes: %s\n\n", or(c.Dislikes, "None specified"))

	b.WriteString("Campaign Details:\n")
	fmt.Fprintf(&b, "- Name: %s\n", camp.Name)
	fmt.Fprintf(&b, "- Description: %s\n", or(camp.Description, "Not provided"))
	fmt.Fprintf(&b, "- Keywords: %s\n", or(camp.Keywords, "Not provided"))
	fmt.Fprintf(&b, "- Campaign Date: %s\n\n", or(camp.CampaignDate, "Not provided"))

	if p != nil {
		b.WriteString("Related Product:\n")
		fmt.Fprintf(&b, "- Name: %s\n", p.Name)
		fmt.Fprintf(&b, "- Description: %s\n", or(p.Description, "Not provided"))
		fmt.Fprintf(&b, "- Keywords: %s\n\n", or(p.Keywords, "Not provided"))
	}

	b.WriteString("Analyze the following factors:\n")
	b.WriteString("1. Match between customer interests and campaign theme\n")
	b.WriteString("2. Timing of the campaign relative to customer profile\n")
	b.WriteString("3. Relevance of campaign keywords to customer interests\n")
	b.WriteString("4. Past customer preferences and behavior patterns\n")
	if p != nil {
		b.WriteString("5. Alignment with product characteristics\n")
	}

	b.WriteString("\nProvide:\n")
	b.WriteString("1. A percentage (0-100) indicating the likelihood of customer interest\n")
	b.WriteString("2. A three-sentence explanation of the reasoning\n\n")
	b.WriteString("Format: Start with the percentage, followed by the explanation. ")
	b.WriteString("If the same customer is given for the same campaign, don't change the answer.")
	return b.String()
}

// Message renders the drafting prompt for one customer. The seller's
// stored style, profession and onboarding transcript are included when
// present.
func Message(c model.Customer, p model.Product, seller *model.UserProfile) string {
	if seller == nil {
		seller = &model.UserProfile{}
	}
	channel := c.Preferences
	if channel == "" {
		channel = model.PreferenceMail
	}

	var b strings.Builder
	b.WriteString("Generate a personalized message for a customer about a product.\n\n")

	b.WriteString("Customer Details:\n")
	fmt.Fprintf(&b, "- Name: %s\n", c.Name)
	fmt.Fprintf(&b, "- Likes: %s\n", or(c.Likes, "None"))
	fmt.Fprintf(&b, "- Dislikes: %s\n\n", or(c.Dislikes, "None"))

	b.WriteString("Product Details:\n")
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Description: %s\n\n", or(p.Description, "Not provided"))

	b.WriteString("Writing Style Instructions:\n")
	if len(seller.Style) > 0 && string(seller.Style) != "null" {
		fmt.Fprintf(&b, "- Writing Style: %s\n", compact(seller.Style))
	}
	if seller.Profession.Profession != "" {
		fmt.Fprintf(&b, "- Professional Level: %s\n", mustJSON(seller.Profession))
	}

	b.WriteString("\nPrevious Conversations for Context:\n")
	if len(seller.Chat.Messages) > 0 {
		b.WriteString(mustJSON(seller.Chat))
	} else {
		b.WriteString("No previous conversations")
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "The message should be in %s format and should be personalized based on their likes and dislikes.\n", channel)
	if channel.IsMail() {
		b.WriteString("For email format, provide a subject line on the first line followed by the email content.\n")
	}
	b.WriteString("Please maintain consistency with the user's writing style and professional level while incorporating relevant context from previous conversations. ")
	fmt.Fprintf(&b, "The Customer is %s. The person selling the product is %s.", c.Name, or(seller.Name, "the seller"))
	return b.String()
}

func compact(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return mustJSON(v)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
