package generator

import (
	"fmt"
	"strings"

	"storyteller-server/internal/model"
)

// storySystemPrompt instructs the model how to write for children. The
// response must be a JSON object matching model.StoryStructure.
const storySystemPrompt = `You are an expert children's story writer and child development specialist who creates meaningful, educational adventures.

CORE MISSION: Create stories that inspire, teach valuable life lessons, and spark imagination while being age-appropriate and emotionally engaging.

STORYTELLING PRINCIPLES:
- Every story should have a clear, positive message or lesson (friendship, courage, kindness, perseverance, creativity, etc.)
- Create emotional connection through relatable characters and situations
- Build narrative tension with gentle challenges that children can understand
- Include moments of discovery, growth, and triumph
- Use rich sensory details to make scenes vivid and immersive
- Ensure logical story progression with cause-and-effect relationships

AGE-APPROPRIATE CONTENT:
- Adjust complexity, vocabulary, and themes based on the child's age
- Include age-appropriate challenges and solutions
- Use familiar concepts while introducing new ideas gently
- Create characters children can identify with and learn from

EDUCATIONAL VALUE:
- Weave in positive values naturally through the story
- Include opportunities for emotional and social learning
- Encourage curiosity, empathy, and problem-solving
- Show consequences of actions in a constructive way

NARRATIVE STRUCTURE:
- Clear beginning with character introduction and setting
- Engaging middle with challenges and character growth
- Satisfying resolution that reinforces the story's message
- Smooth transitions between pages that maintain engagement
- Each page should advance the story meaningfully

Respond with JSON only, in this shape:
{"title": string, "total_pages": int, "pages": [{"page_number": int, "text": string, "image_description": string, "choices": [{"text": string, "next_page": int}]}]}
Omit "choices" for non-interactive stories.`

// imagePromptSystemPrompt instructs the model how to compose illustration
// prompts.
const imagePromptSystemPrompt = `You are an expert at creating DALL-E image prompts for children's book illustrations.
Create vivid, child-friendly, colorful prompts that capture the essence of the story page.

Guidelines:
- Use warm, inviting colors
- Include whimsical, magical elements when appropriate
- Keep content completely child-safe
- Describe scenes that complement the text
- Use art styles like: watercolor, digital illustration, cartoon style
- Avoid any scary, violent, or inappropriate content`

// buildStoryPrompt renders the user prompt for the story structure call.
func buildStoryPrompt(params model.GenerationParams, expectedPages, minWords, maxWords int) string {
	format := "Linear narrative with clear story progression"
	if params.IsInteractive {
		format = "Interactive with meaningful choices that affect the story outcome"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Create a meaningful %s adventure story that teaches valuable life lessons while entertaining and inspiring young readers.\n\n", params.Theme)
	fmt.Fprintf(&b, "STORY PARAMETERS:\n")
	fmt.Fprintf(&b, "- Hero: %s (age %d)\n", params.HeroName, params.HeroAge)
	fmt.Fprintf(&b, "- Theme: %s\n", params.Theme)
	fmt.Fprintf(&b, "- Total pages: %d\n", expectedPages)
	fmt.Fprintf(&b, "- Format: %s\n", format)
	if params.SpecialRequest != "" {
		fmt.Fprintf(&b, "- Special request: %s\n", params.SpecialRequest)
	}
	fmt.Fprintf(&b, "\nCONTENT REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Each page: %d-%d words (perfectly tailored for %d-year-old comprehension)\n", minWords, maxWords, params.HeroAge)
	fmt.Fprintf(&b, "- Central Message: Choose ONE meaningful theme (courage, friendship, kindness, perseverance, creativity, helping others, etc.)\n")
	fmt.Fprintf(&b, "- Emotional Arc: Show %s facing age-appropriate challenges and growing through the experience\n", params.HeroName)
	fmt.Fprintf(&b, "- Educational Value: Naturally weave in positive values and gentle life lessons\n")
	fmt.Fprintf(&b, "- Sensory Details: Rich descriptions that engage imagination and support illustration\n")
	fmt.Fprintf(&b, "\nSTORY STRUCTURE REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Page 1: Introduce %s in their world, establish the adventure premise\n", params.HeroName)
	fmt.Fprintf(&b, "- Middle pages: Build adventure with challenges that teach the chosen lesson\n")
	fmt.Fprintf(&b, "- Final page: Satisfying resolution showing how %s has grown and learned\n", params.HeroName)
	fmt.Fprintf(&b, "- Smooth Transitions: Each page should flow naturally to the next with logical progression\n")
	fmt.Fprintf(&b, "- Vivid Scenes: Each page should paint a clear, imaginative picture for illustration\n")
	fmt.Fprintf(&b, "\nILLUSTRATION GUIDELINES:\n")
	fmt.Fprintf(&b, "- Provide detailed image_description for each page that captures the emotion and action\n")
	fmt.Fprintf(&b, "- Ensure descriptions support the story's mood and message\n")
	fmt.Fprintf(&b, "- Include specific details about %s's expressions and body language\n", params.HeroName)
	fmt.Fprintf(&b, "- Describe the setting in a way that enhances the story's atmosphere\n")
	fmt.Fprintf(&b, "\nCreate a story that parents will love reading with their children and that children will remember fondly.")
	return b.String()
}

// buildImagePromptRequest renders the user prompt for the prompt-composition
// call. The page text excerpt is capped at 200 characters.
func buildImagePromptRequest(pageText, imageDescription string, params model.GenerationParams) string {
	base := imageDescription
	if base == "" {
		base = fmt.Sprintf("Scene from a %s children's story featuring %s", params.Theme, params.HeroName)
	}

	excerpt := pageText
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}

	return fmt.Sprintf(`Create a DALL-E image prompt for this children's story illustration:

Story Context:
- Theme: %s
- Hero: %s (age %d)
- Base description: %s
- Page text excerpt: %s...

Create a detailed, child-friendly image prompt that captures the magical essence of this scene. Include art style suggestions and ensure the content is completely appropriate for children.`,
		params.Theme, params.HeroName, params.HeroAge, base, excerpt)
}

// details kept identical across every illustration of one story so the hero
// looks the same on each page.
type details struct {
	CharacterDescription string
	CharacterDetails     string
	ArtStyle             string
	ColorPalette         string
	Mood                 string
	ConsistencyNote      string
	StoryTitle           string
}

// consistencyDetails derives the character description from the hero's age
// band.
func consistencyDetails(storyTitle string, params model.GenerationParams) details {
	var characterDesc string
	switch {
	case params.HeroAge <= 3:
		characterDesc = fmt.Sprintf("a very young toddler named %s, chubby cheeks, large round eyes, curly hair, wearing simple colorful clothes", params.HeroName)
	case params.HeroAge <= 5:
		characterDesc = fmt.Sprintf("a %d-year-old child named %s, round face, bright curious eyes, shoulder-length hair, wearing a bright colored t-shirt and shorts", params.HeroAge, params.HeroName)
	case params.HeroAge <= 8:
		characterDesc = fmt.Sprintf("a %d-year-old child named %s, friendly smile, medium-length brown hair, wearing an adventure outfit with a small backpack", params.HeroAge, params.HeroName)
	default:
		characterDesc = fmt.Sprintf("a %d-year-old child named %s, confident expression, neat hair, wearing practical adventure clothing", params.HeroAge, params.HeroName)
	}

	return details{
		CharacterDescription: characterDesc,
		CharacterDetails:     fmt.Sprintf("ALWAYS show the same child - %s. Keep the character's appearance EXACTLY the same in every image", characterDesc),
		ArtStyle:             "consistent digital illustration style, children's book art, same artistic technique throughout",
		ColorPalette:         "warm, bright colors - consistent lighting and color scheme",
		Mood:                 "cheerful, magical, and child-friendly atmosphere",
		ConsistencyNote:      fmt.Sprintf("CRITICAL: The main character %s must look identical in every image - same face, same hair, same clothing style", params.HeroName),
		StoryTitle:           storyTitle,
	}
}

// buildConsistentPrompt wraps the composed image prompt with the character
// consistency constraints.
func buildConsistentPrompt(basePrompt string, params model.GenerationParams, d details) string {
	return fmt.Sprintf(`%s

CHARACTER CONSISTENCY - CRITICAL:
%s

VISUAL SPECIFICATIONS:
- Art style: %s
- Colors: %s
- Mood: %s
- Theme: %s adventure setting with appropriate props and background

CONSISTENCY REQUIREMENTS:
- %s
- Same facial features, hair style, and clothing throughout the story
- Consistent artistic style and color scheme
- High-quality children's book illustration

Quality: Professional children's book illustration, engaging and safe for kids.`,
		basePrompt, d.CharacterDetails, d.ArtStyle, d.ColorPalette, d.Mood, params.Theme, d.ConsistencyNote)
}

// fallbackOpening is the first page of the templated story.
func fallbackOpening(params model.GenerationParams, longForm bool) string {
	if longForm {
		return fmt.Sprintf("Meet %s, a wonderful %d-year-old who loves exploring and helping others. One beautiful day, %s decided to go on a special %s adventure to spread kindness and make new friends. The sun was shining brightly, birds were singing cheerfully, and %s felt excited about all the wonderful things that might happen on this magical journey.",
			params.HeroName, params.HeroAge, params.HeroName, params.Theme, params.HeroName)
	}
	return fmt.Sprintf("Meet %s, a wonderful %d-year-old who loves helping others. Today, %s goes on a %s adventure to make new friends!",
		params.HeroName, params.HeroAge, params.HeroName, params.Theme)
}

// fallbackClosing is the last page of the templated story.
func fallbackClosing(params model.GenerationParams, longForm bool) string {
	if longForm {
		return fmt.Sprintf("%s smiled with joy, feeling proud of all the kind acts and new friendships made during this wonderful %s adventure. %s learned that the best adventures happen when we help others and spread happiness wherever we go. What a magical day it had been! %s couldn't wait to tell everyone about all the wonderful friends made and kindness shared.",
			params.HeroName, params.Theme, params.HeroName, params.HeroName)
	}
	return fmt.Sprintf("%s smiled with joy! The %s adventure was amazing. %s made new friends and helped others. What a wonderful day!",
		params.HeroName, params.Theme, params.HeroName)
}

// fallbackMiddles are the middle-page variants; the last one repeats when
// the story is longer than the template.
func fallbackMiddles(params model.GenerationParams) []string {
	return []string{
		fmt.Sprintf("Along the way, %s met someone who needed help and offered a helping hand with a warm smile. The act of kindness made both %s and the new friend feel wonderfully happy.",
			params.HeroName, params.HeroName),
		fmt.Sprintf("%s discovered that being brave and kind creates the most amazing adventures. Every person %s helped became a new friend, making the %s journey even more special.",
			params.HeroName, params.HeroName, params.Theme),
		fmt.Sprintf("With each step, %s found new ways to spread joy and kindness. The %s world seemed to sparkle brighter with every good deed and every new friendship that bloomed.",
			params.HeroName, params.Theme),
	}
}
